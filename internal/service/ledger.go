package service

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"

	"gorm.io/gorm"
)

const (
	defaultLedgerMaxRetries   = 3
	defaultLedgerRetryBackoff = 20 * time.Millisecond
)

// LedgerOptions 账本写事务的重试与超时策略
type LedgerOptions struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// NewLedgerOptions 从配置构建事务策略
func NewLedgerOptions(cfg config.LedgerConfig) LedgerOptions {
	return LedgerOptions{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff(),
		Timeout:      cfg.Timeout(),
	}
}

func (o LedgerOptions) normalized() LedgerOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetries == 0 && o.RetryBackoff == 0 && o.Timeout == 0 {
		o.MaxRetries = defaultLedgerMaxRetries
		o.RetryBackoff = defaultLedgerRetryBackoff
	}
	return o
}

// LedgerRunner 执行账本写事务：单次尝试一个数据库事务，条件更新未命中时有限重试
type LedgerRunner struct {
	db      *gorm.DB
	opts    LedgerOptions
	metrics *metrics.LedgerMetrics
}

// NewLedgerRunner 创建事务执行器
func NewLedgerRunner(db *gorm.DB, opts LedgerOptions, m *metrics.LedgerMetrics) *LedgerRunner {
	return &LedgerRunner{db: db, opts: opts.normalized(), metrics: m}
}

// Run 在事务中执行 fn，fn 返回 errConcurrentModification 时整体回滚并重试
func (r *LedgerRunner) Run(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	attempts := r.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return wrapPersistence(err)
		}
		err := r.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConcurrentModification) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return wrapPersistence(ctxErr)
			}
			return wrapPersistence(err)
		}
		if attempt >= attempts {
			logger.Warnw("ledger_tx_retry_exhausted",
				"operation", operation,
				"attempts", attempt,
			)
			return ErrLedgerRetryExhausted
		}
		r.metrics.IncRetry(operation)
		logger.Debugw("ledger_tx_conflict",
			"operation", operation,
			"attempt", attempt,
		)
		if err := sleepWithContext(ctx, r.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return wrapPersistence(err)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// observe 记录操作结果指标
func observe(m *metrics.LedgerMetrics, operation string, startedAt time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(ErrorCodeOf(err))
	}
	m.ObserveOperation(operation, outcome, time.Since(startedAt))
}
