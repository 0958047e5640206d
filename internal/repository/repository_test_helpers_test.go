package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRepositoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createTestBrand(t *testing.T, db *gorm.DB, slug string, active bool) *models.Brand {
	t.Helper()
	brand := &models.Brand{Name: slug, Slug: slug, IsActive: true}
	if err := db.Create(brand).Error; err != nil {
		t.Fatalf("create brand failed: %v", err)
	}
	if !active {
		if err := db.Model(brand).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate brand failed: %v", err)
		}
		brand.IsActive = false
	}
	return brand
}

func createTestVoucher(t *testing.T, db *gorm.DB, voucher *models.Voucher) *models.Voucher {
	t.Helper()
	active := voucher.IsActive
	if err := db.Create(voucher).Error; err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}
	// gorm 会忽略 bool 零值并使用默认值 true
	if !active {
		if err := db.Model(voucher).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate voucher failed: %v", err)
		}
		voucher.IsActive = false
	}
	return voucher
}

func createTestPurchase(t *testing.T, db *gorm.DB, voucherID uint, quantity int, createdAt time.Time) *models.PurchaseRecord {
	t.Helper()
	record := &models.PurchaseRecord{
		Code:        fmt.Sprintf("code-%d-%d", voucherID, time.Now().UnixNano()),
		VoucherID:   voucherID,
		SenderID:    1,
		Quantity:    quantity,
		UnitPrice:   models.MustMoney("10"),
		TotalAmount: models.MustMoney("10").Times(quantity),
		UsageStatus: constants.UsageStatusUnused,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}
	return record
}

func createTestAudit(t *testing.T, db *gorm.DB, record *models.PurchaseRecord, action string, at time.Time) {
	t.Helper()
	prev, next := constants.UsageStatusUnused, constants.UsageStatusUsed
	if action == constants.RedeemActionUndoRedeem {
		prev, next = next, prev
	}
	event := &models.RedeemAuditEvent{
		PurchaseRecordID: record.ID,
		VoucherID:        record.VoucherID,
		PerformedBy:      "tester",
		Action:           action,
		PerformedAt:      at,
		Quantity:         record.Quantity,
		PreviousStatus:   prev,
		NewStatus:        next,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("create audit failed: %v", err)
	}
}
