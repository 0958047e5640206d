package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultAlertScanInterval = 5 * time.Minute
)

// AlertScanEnqueuer 投递告警扫描任务
type AlertScanEnqueuer interface {
	EnqueueLedgerAlertScan(payload queue.LedgerAlertScanPayload) error
}

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	scheduler     AlertScanEnqueuer
	scanInterval  time.Duration
	alertDefaults queue.LedgerAlertScanPayload
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	svc := &Service{
		name:         "worker",
		server:       server,
		mux:          mux,
		consumer:     consumer,
		scanInterval: alertScanInterval(cfg.Worker),
		alertDefaults: queue.LedgerAlertScanPayload{
			LowStockThreshold: cfg.Statistics.LowStockThreshold,
			ExpiringDays:      cfg.Statistics.ExpiringDays,
		},
	}
	if consumer.Container != nil && consumer.QueueClient != nil {
		svc.scheduler = consumer.QueueClient
	}
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.scheduler != nil {
		go s.runAlertScanLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runAlertScanLoop(ctx context.Context) {
	if s == nil || s.scheduler == nil {
		return
	}
	runOnce := func() {
		if err := s.scheduler.EnqueueLedgerAlertScan(s.alertDefaults); err != nil {
			logger.Warnw("worker_alert_scan_enqueue_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func alertScanInterval(cfg config.WorkerConfig) time.Duration {
	if cfg.AlertScanIntervalSeconds <= 0 {
		return defaultAlertScanInterval
	}
	return time.Duration(cfg.AlertScanIntervalSeconds) * time.Second
}
