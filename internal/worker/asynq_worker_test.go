package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/provider"
	"github.com/dujiao-next/voucher-ledger/internal/queue"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerConsumer(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	cfg := &config.Config{
		Ledger:     config.LedgerConfig{MaxRetries: 2, RetryBackoffMS: 1},
		Statistics: config.StatisticsConfig{CacheTTLSeconds: 30, DefaultTrendDays: 7, LowStockThreshold: 5, ExpiringDays: 30},
	}
	container := provider.NewContainerWithDB(cfg, db, nil, nil, metrics.NewLedgerMetrics("worker_test"))
	return NewConsumer(container), db
}

func mustTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(taskType, body)
}

func gatherValue(t *testing.T, m *metrics.LedgerMetrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			if gauge := metric.GetGauge(); gauge != nil {
				return gauge.GetValue()
			}
			if counter := metric.GetCounter(); counter != nil {
				return counter.GetValue()
			}
		}
	}
	return -1
}

func TestHandleLedgerAlertScanSetsGauges(t *testing.T) {
	consumer, db := setupWorkerConsumer(t)
	vouchers := []models.Voucher{
		{Title: "low", Amount: models.MustMoney("10"), Quantity: 2, IsActive: true},
		{Title: "plenty", Amount: models.MustMoney("10"), Quantity: 50, IsActive: true},
		{Title: "unlimited", Amount: models.MustMoney("10"), Unlimited: true, IsActive: true},
		{Title: "expiring", Amount: models.MustMoney("10"), Quantity: 40, ValidMonths: 1, IsActive: true},
	}
	for i := range vouchers {
		if err := db.Create(&vouchers[i]).Error; err != nil {
			t.Fatalf("create voucher failed: %v", err)
		}
	}

	task := mustTask(t, queue.TaskLedgerAlertScan, queue.LedgerAlertScanPayload{LowStockThreshold: 5, ExpiringDays: 40})
	if err := consumer.handleLedgerAlertScan(context.Background(), task); err != nil {
		t.Fatalf("alert scan failed: %v", err)
	}

	if got := gatherValue(t, consumer.Metrics, "worker_test_ledger_alert_vouchers", map[string]string{"kind": alertKindLowStock}); got != 1 {
		t.Fatalf("low stock gauge want 1 got %v", got)
	}
	if got := gatherValue(t, consumer.Metrics, "worker_test_ledger_alert_vouchers", map[string]string{"kind": alertKindExpiring}); got != 1 {
		t.Fatalf("expiring gauge want 1 got %v", got)
	}
	if got := gatherValue(t, consumer.Metrics, "worker_test_worker_jobs_total", map[string]string{"task": queue.TaskLedgerAlertScan, "outcome": jobOutcomeOK}); got != 1 {
		t.Fatalf("job counter want 1 got %v", got)
	}
}

func TestHandleLedgerAlertScanInvalidPayload(t *testing.T) {
	consumer, _ := setupWorkerConsumer(t)

	negative := mustTask(t, queue.TaskLedgerAlertScan, map[string]int{"low_stock_threshold": 0, "expiring_days": -1})
	if err := consumer.handleLedgerAlertScan(context.Background(), negative); err != nil {
		t.Fatalf("invalid range should be skipped without retry, got %v", err)
	}

	broken := asynq.NewTask(queue.TaskLedgerAlertScan, []byte("{not-json"))
	if err := consumer.handleLedgerAlertScan(context.Background(), broken); err == nil {
		t.Fatalf("malformed payload should return error")
	}
}

func TestHandleStatisticsRefresh(t *testing.T) {
	consumer, db := setupWorkerConsumer(t)
	brand := models.Brand{Name: "Alpha", Slug: "alpha", IsActive: true}
	if err := db.Create(&brand).Error; err != nil {
		t.Fatalf("create brand failed: %v", err)
	}

	task := mustTask(t, queue.TaskStatisticsRefresh, queue.StatisticsRefreshPayload{Source: "ledger"})
	if err := consumer.handleStatisticsRefresh(context.Background(), task); err != nil {
		t.Fatalf("statistics refresh failed: %v", err)
	}
	if got := gatherValue(t, consumer.Metrics, "worker_test_worker_jobs_total", map[string]string{"task": queue.TaskStatisticsRefresh, "outcome": jobOutcomeOK}); got != 1 {
		t.Fatalf("job counter want 1 got %v", got)
	}

	if err := consumer.handleStatisticsRefresh(context.Background(), asynq.NewTask(queue.TaskStatisticsRefresh, nil)); err != nil {
		t.Fatalf("empty payload should be accepted, got %v", err)
	}
}

func TestAlertScanInterval(t *testing.T) {
	if got := alertScanInterval(config.WorkerConfig{}); got != defaultAlertScanInterval {
		t.Fatalf("default interval want %v got %v", defaultAlertScanInterval, got)
	}
	if got := alertScanInterval(config.WorkerConfig{AlertScanIntervalSeconds: 90}); got != 90*time.Second {
		t.Fatalf("custom interval want 90s got %v", got)
	}
}

func TestNewServiceRequiresQueue(t *testing.T) {
	if _, err := NewService(&config.Config{}, &Consumer{}); err == nil {
		t.Fatalf("disabled queue should fail")
	}
	cfg := &config.Config{Queue: config.QueueConfig{Enabled: true}}
	if _, err := NewService(cfg, nil); err == nil {
		t.Fatalf("nil consumer should fail")
	}
}
