package queue

import (
	"encoding/json"

	"github.com/dujiao-next/voucher-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskStatisticsRefresh 统计缓存重算任务
	TaskStatisticsRefresh = constants.TaskStatisticsRefresh
	// TaskLedgerAlertScan 低库存与即将到期扫描任务
	TaskLedgerAlertScan = constants.TaskLedgerAlertScan
)

// StatisticsRefreshPayload 统计缓存重算任务载荷
// 载荷只描述触发来源，保持内容稳定以便 asynq.Unique 去重
type StatisticsRefreshPayload struct {
	Source string `json:"source"`
}

// LedgerAlertScanPayload 告警扫描任务载荷，零值使用服务端默认阈值
type LedgerAlertScanPayload struct {
	LowStockThreshold int `json:"low_stock_threshold"`
	ExpiringDays      int `json:"expiring_days"`
}

// NewStatisticsRefreshTask 创建统计缓存重算任务
func NewStatisticsRefreshTask(payload StatisticsRefreshPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatisticsRefresh, body), nil
}

// NewLedgerAlertScanTask 创建告警扫描任务
func NewLedgerAlertScanTask(payload LedgerAlertScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerAlertScan, body), nil
}
