package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/provider"
	"github.com/dujiao-next/voucher-ledger/internal/queue"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/hibiken/asynq"
)

const (
	jobOutcomeOK      = "ok"
	jobOutcomeFailed  = "failed"
	jobOutcomeSkipped = "skipped"

	alertKindLowStock = "low_stock"
	alertKindExpiring = "expiring"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskStatisticsRefresh, c.handleStatisticsRefresh)
	mux.HandleFunc(queue.TaskLedgerAlertScan, c.handleLedgerAlertScan)
}

func (c *Consumer) handleStatisticsRefresh(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil {
		logger.Debugw("worker_statistics_refresh_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.StatisticsRefreshPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_statistics_refresh_unmarshal_failed", "error", err)
			c.Metrics.IncJob(queue.TaskStatisticsRefresh, jobOutcomeFailed)
			return err
		}
	}
	if c.StatisticsService == nil {
		logger.Warnw("worker_statistics_refresh_skip_service_nil", "source", payload.Source)
		c.Metrics.IncJob(queue.TaskStatisticsRefresh, jobOutcomeSkipped)
		return nil
	}
	if err := c.StatisticsService.RefreshCache(ctx); err != nil {
		logger.Warnw("worker_statistics_refresh_failed", "source", payload.Source, "error", err)
		c.Metrics.IncJob(queue.TaskStatisticsRefresh, jobOutcomeFailed)
		return err
	}
	logger.Debugw("worker_statistics_refresh_done", "source", payload.Source)
	c.Metrics.IncJob(queue.TaskStatisticsRefresh, jobOutcomeOK)
	return nil
}

func (c *Consumer) handleLedgerAlertScan(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil {
		logger.Debugw("worker_alert_scan_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.LedgerAlertScanPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_alert_scan_unmarshal_failed", "error", err)
			c.Metrics.IncJob(queue.TaskLedgerAlertScan, jobOutcomeFailed)
			return err
		}
	}
	if c.StatisticsService == nil {
		logger.Warnw("worker_alert_scan_skip_service_nil")
		c.Metrics.IncJob(queue.TaskLedgerAlertScan, jobOutcomeSkipped)
		return nil
	}
	result, err := c.StatisticsService.ScanAlerts(ctx, payload.LowStockThreshold, payload.ExpiringDays)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			// 载荷非法时重试无意义
			logger.Warnw("worker_alert_scan_invalid_payload",
				"low_stock_threshold", payload.LowStockThreshold,
				"expiring_days", payload.ExpiringDays,
				"error", err,
			)
			c.Metrics.IncJob(queue.TaskLedgerAlertScan, jobOutcomeSkipped)
			return nil
		}
		logger.Warnw("worker_alert_scan_failed", "error", err)
		c.Metrics.IncJob(queue.TaskLedgerAlertScan, jobOutcomeFailed)
		return err
	}
	reportAlerts(c, result)
	c.Metrics.IncJob(queue.TaskLedgerAlertScan, jobOutcomeOK)
	return nil
}

func reportAlerts(c *Consumer, result *service.AlertScanResult) {
	if result == nil {
		return
	}
	c.Metrics.SetAlertCount(alertKindLowStock, len(result.LowStock))
	c.Metrics.SetAlertCount(alertKindExpiring, len(result.Expiring))

	if len(result.LowStock) > 0 {
		logger.Warnw("ledger_alert_low_stock",
			"count", len(result.LowStock),
			"voucher_ids", lowStockIDs(result.LowStock),
		)
	}
	if len(result.Expiring) > 0 {
		logger.Warnw("ledger_alert_expiring",
			"count", len(result.Expiring),
			"voucher_ids", expiringIDs(result.Expiring),
		)
	}
}

func lowStockIDs(items []service.LowStockItem) []uint {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VoucherID)
	}
	return ids
}

func expiringIDs(items []service.ExpiringVoucherItem) []uint {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VoucherID)
	}
	return ids
}
