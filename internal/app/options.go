package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/logger"

	"go.uber.org/zap"
)

// 启动模式
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const defaultShutdownTimeout = 10 * time.Second

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 && opts.Config != nil && opts.Config.Server.ShutdownTimeoutSeconds > 0 {
		opts.ShutdownTimeout = time.Duration(opts.Config.Server.ShutdownTimeoutSeconds) * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}
	return opts
}

// parseMode 返回模式对应的 api/worker 开关
func parseMode(mode string) (api bool, worker bool, err error) {
	switch mode {
	case ModeAll:
		return true, true, nil
	case ModeAPI:
		return true, false, nil
	case ModeWorker:
		return false, true, nil
	default:
		return false, false, fmt.Errorf("unknown mode %q (want all, api or worker)", mode)
	}
}
