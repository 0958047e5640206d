package app

import (
	"errors"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/provider"
	"github.com/dujiao-next/voucher-ledger/internal/router"
	"github.com/dujiao-next/voucher-ledger/internal/worker"
)

// BuildRunner 按启动模式组装 HTTP 与 Worker 服务
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	withAPI, withWorker, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	return buildRunner(cfg, provider.NewContainer(cfg), withAPI, withWorker)
}

func buildRunner(cfg *config.Config, container *provider.Container, withAPI, withWorker bool) (*Runner, error) {
	var services []Service
	if withAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}
	if withWorker {
		// worker 模式要求队列可用，all 模式下队列关闭时只启动 API
		workerService, err := worker.NewService(cfg, worker.NewConsumer(container))
		switch {
		case err == nil:
			services = append(services, workerService)
		case withAPI:
			logger.S().Warnw("worker_disabled", "error", err)
		default:
			return nil, err
		}
	}
	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnShutdown(container.Close)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
