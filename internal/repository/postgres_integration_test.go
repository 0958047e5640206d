//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := models.AllModels()
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(cleanupModels...); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresDecrementStockUnderContention(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	voucher := createTestVoucher(t, db, &models.Voucher{Title: "pg-stock", Amount: models.MustMoney("10"), Quantity: 5, IsActive: true})
	repo := NewVoucherRepository(db)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			affected, err := repo.DecrementStock(voucher.ID, 1)
			if err != nil {
				t.Errorf("decrement stock failed: %v", err)
				return
			}
			if affected == 1 {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("succeeded decrements want 5 got %d", succeeded)
	}
	reloaded, err := repo.GetByID(voucher.ID)
	if err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if reloaded.Quantity != 0 {
		t.Fatalf("quantity want 0 got %d", reloaded.Quantity)
	}
}

func TestPostgresStatisticsRepository(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	brand := createTestBrand(t, db, "pg-brand", true)
	voucher := createTestVoucher(t, db, &models.Voucher{Title: "PG Latte", Amount: models.MustMoney("10"), Quantity: 20, BrandID: &brand.ID, IsActive: true})

	day1 := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)
	first := createTestPurchase(t, db, voucher.ID, 2, day1)
	createTestPurchase(t, db, voucher.ID, 3, day2)
	createTestAudit(t, db, first, constants.RedeemActionRedeem, day2)
	if err := db.Model(voucher).Update("redeemed", 2).Error; err != nil {
		t.Fatalf("update redeemed failed: %v", err)
	}
	windowStart, windowEnd := day1.Add(-time.Hour), day2.Add(time.Hour)

	repo := NewStatisticsRepository(db)
	sold, err := repo.GetDailySold(StatisticsScope{})
	if err != nil {
		t.Fatalf("daily sold failed: %v", err)
	}
	if len(sold) != 2 || sold[0].Day != "2026-03-01" || sold[1].Day != "2026-03-02" {
		t.Fatalf("unexpected daily sold: %+v", sold)
	}

	redeemed, err := repo.GetBrandRedeemed(StatisticsScope{StartAt: &windowStart, EndAt: &windowEnd})
	if err != nil {
		t.Fatalf("brand redeemed failed: %v", err)
	}
	if len(redeemed) != 1 || redeemed[0].BrandID != brand.ID || redeemed[0].Total != 2 {
		t.Fatalf("unexpected brand redeemed: %+v", redeemed)
	}

	rows, total, err := repo.ListVoucherUsage(VoucherUsageFilter{Page: 1, PageSize: 10, Search: "latte"})
	if err != nil {
		t.Fatalf("voucher usage failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Sold != 5 || rows[0].Redeemed != 2 {
		t.Fatalf("unexpected voucher usage: total=%d rows=%+v", total, rows)
	}
}
