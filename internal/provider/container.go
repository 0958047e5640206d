package provider

import (
	"errors"
	"fmt"

	"github.com/dujiao-next/voucher-ledger/internal/authz"
	"github.com/dujiao-next/voucher-ledger/internal/cache"
	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/queue"
	"github.com/dujiao-next/voucher-ledger/internal/repository"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client
	Cache       *cache.Store
	Metrics     *metrics.LedgerMetrics

	// Repositories
	UserRepo        repository.UserRepository
	BrandRepo       repository.BrandRepository
	VoucherRepo     repository.VoucherRepository
	PurchaseRepo    repository.PurchaseRepository
	RedeemAuditRepo repository.RedeemAuditRepository
	WalletRepo      repository.WalletRepository
	StatisticsRepo  repository.StatisticsRepository

	// Services
	AuthzService      *authz.Service
	LedgerRunner      *service.LedgerRunner
	WalletService     *service.WalletService
	PurchaseService   *service.PurchaseService
	RedemptionService *service.RedemptionService
	StatisticsService *service.StatisticsService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	store := cache.NewRedisStore(&cfg.Redis)

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	var ledgerMetrics *metrics.LedgerMetrics
	if cfg.Metrics.Enabled {
		ledgerMetrics = metrics.NewLedgerMetrics(cfg.Metrics.Namespace)
	}

	c := NewContainerWithDB(cfg, models.DB, store, queueClient, ledgerMetrics)

	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}
	return c
}

// NewContainerWithDB 使用给定依赖组装仓储与服务，缓存、队列、指标均可为空
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, store *cache.Store, queueClient *queue.Client, m *metrics.LedgerMetrics) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
		Cache:       store,
		Metrics:     m,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

// Close 释放队列客户端与 Redis 连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue client: %w", err))
		}
	}
	if c.Cache != nil && c.Cache.Enabled() {
		if err := c.Cache.Client().Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) initRepositories() {
	db := c.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.BrandRepo = repository.NewBrandRepository(db)
	c.VoucherRepo = repository.NewVoucherRepository(db)
	c.PurchaseRepo = repository.NewPurchaseRepository(db)
	c.RedeemAuditRepo = repository.NewRedeemAuditRepository(db)
	c.WalletRepo = repository.NewWalletRepository(db)
	c.StatisticsRepo = repository.NewStatisticsRepository(db)
}

func (c *Container) initServices() {
	var statisticsCache service.StatisticsCache
	if c.Cache != nil && c.Cache.Enabled() {
		statisticsCache = c.Cache
	}
	var enqueuer service.RefreshEnqueuer
	if c.QueueClient != nil && c.QueueClient.Enabled() {
		enqueuer = c.QueueClient
	}

	c.LedgerRunner = service.NewLedgerRunner(c.DB, service.NewLedgerOptions(c.Config.Ledger), c.Metrics)
	c.StatisticsService = service.NewStatisticsService(c.StatisticsRepo, c.BrandRepo, statisticsCache, enqueuer, c.Metrics, c.Config.Statistics)
	c.WalletService = service.NewWalletService(c.WalletRepo, c.UserRepo, c.LedgerRunner, c.Metrics)
	c.PurchaseService = service.NewPurchaseService(c.VoucherRepo, c.PurchaseRepo, c.UserRepo, c.WalletService, c.LedgerRunner, c.StatisticsService, c.Metrics)
	c.RedemptionService = service.NewRedemptionService(c.PurchaseRepo, c.VoucherRepo, c.RedeemAuditRepo, c.LedgerRunner, c.StatisticsService, c.Metrics)
}
