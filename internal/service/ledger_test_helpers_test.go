package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/queue"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type ledgerTestEnv struct {
	db         *gorm.DB
	wallet     *WalletService
	purchase   *PurchaseService
	redemption *RedemptionService
	statistics *StatisticsService
	cache      *memoryStatisticsCache
	enqueuer   *recordingEnqueuer
}

func setupLedgerTest(t *testing.T) *ledgerTestEnv {
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
	// SQLite 单连接串行化写事务
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	runner := NewLedgerRunner(db, LedgerOptions{MaxRetries: 3, RetryBackoff: time.Millisecond, Timeout: 5 * time.Second}, nil)
	userRepo := repository.NewUserRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)

	env := &ledgerTestEnv{
		db:       db,
		cache:    newMemoryStatisticsCache(),
		enqueuer: &recordingEnqueuer{},
	}
	env.statistics = NewStatisticsService(
		repository.NewStatisticsRepository(db),
		repository.NewBrandRepository(db),
		env.cache,
		env.enqueuer,
		nil,
		config.StatisticsConfig{CacheTTLSeconds: 45, DefaultTrendDays: 7, LowStockThreshold: 5, ExpiringDays: 30},
	)
	env.wallet = NewWalletService(repository.NewWalletRepository(db), userRepo, runner, nil)
	env.purchase = NewPurchaseService(voucherRepo, purchaseRepo, userRepo, env.wallet, runner, env.statistics, nil)
	env.redemption = NewRedemptionService(purchaseRepo, voucherRepo, repository.NewRedeemAuditRepository(db), runner, env.statistics, nil)
	return env
}

func (e *ledgerTestEnv) createUser(t *testing.T, balance string) *models.User {
	t.Helper()
	user := &models.User{
		Email:  fmt.Sprintf("buyer_%d@example.com", time.Now().UnixNano()),
		Status: constants.UserStatusActive,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if balance != "" {
		account := &models.WalletAccount{UserID: user.ID, Balance: models.MustMoney(balance)}
		if err := e.db.Create(account).Error; err != nil {
			t.Fatalf("create wallet failed: %v", err)
		}
	}
	return user
}

func (e *ledgerTestEnv) createBrand(t *testing.T, slug string) *models.Brand {
	t.Helper()
	brand := &models.Brand{Name: strings.ToUpper(slug), Slug: slug, IsActive: true}
	if err := e.db.Create(brand).Error; err != nil {
		t.Fatalf("create brand failed: %v", err)
	}
	return brand
}

func (e *ledgerTestEnv) createVoucher(t *testing.T, voucher *models.Voucher) *models.Voucher {
	t.Helper()
	voucher.IsActive = true
	if voucher.Title == "" {
		voucher.Title = fmt.Sprintf("voucher-%d", time.Now().UnixNano())
	}
	if err := e.db.Create(voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}
	return voucher
}

func (e *ledgerTestEnv) reloadVoucher(t *testing.T, id uint) models.Voucher {
	t.Helper()
	var voucher models.Voucher
	if err := e.db.Unscoped().First(&voucher, id).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	return voucher
}

func (e *ledgerTestEnv) balanceOf(t *testing.T, userID uint) string {
	t.Helper()
	account, err := e.wallet.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	return account.Balance.String()
}

func (e *ledgerTestEnv) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var total int64
	if err := e.db.Model(model).Count(&total).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return total
}

type memoryStatisticsCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	reads   int
	writes  int
}

func newMemoryStatisticsCache() *memoryStatisticsCache {
	return &memoryStatisticsCache{entries: make(map[string][]byte)}
}

func (c *memoryStatisticsCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryStatisticsCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.entries[key] = raw
	return nil
}

func (c *memoryStatisticsCache) DelByPrefix(_ context.Context, keyPrefix string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var deleted int64
	for key := range c.entries {
		if strings.HasPrefix(key, keyPrefix) {
			delete(c.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (c *memoryStatisticsCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.StatisticsRefreshPayload
}

func (r *recordingEnqueuer) EnqueueStatisticsRefresh(payload queue.StatisticsRefreshPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func uintPtr(v uint) *uint {
	return &v
}
