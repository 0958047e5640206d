package repository

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseRepository 购买记录数据访问接口
type PurchaseRepository interface {
	Create(record *models.PurchaseRecord) error
	GetByID(id uint) (*models.PurchaseRecord, error)
	GetByIDForUpdate(id uint) (*models.PurchaseRecord, error)
	GetByCode(code string) (*models.PurchaseRecord, error)
	List(filter PurchaseListFilter) ([]models.PurchaseRecord, int64, error)
	TransitionUsage(id uint, from, to string, usedAt *time.Time) (int64, error)
	WithTx(tx *gorm.DB) PurchaseRepository
	WithContext(ctx context.Context) PurchaseRepository
}

// GormPurchaseRepository GORM 购买记录仓储实现
type GormPurchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository 创建购买记录仓储
func NewPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPurchaseRepository) WithTx(tx *gorm.DB) PurchaseRepository {
	if tx == nil {
		return r
	}
	return &GormPurchaseRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormPurchaseRepository) WithContext(ctx context.Context) PurchaseRepository {
	if ctx == nil {
		return r
	}
	return &GormPurchaseRepository{db: r.db.WithContext(ctx)}
}

// Create 写入购买记录
func (r *GormPurchaseRepository) Create(record *models.PurchaseRecord) error {
	return r.db.Create(record).Error
}

// GetByID 按ID获取购买记录
func (r *GormPurchaseRepository) GetByID(id uint) (*models.PurchaseRecord, error) {
	return r.first(r.db, "id = ?", id)
}

// GetByIDForUpdate 加锁获取购买记录
func (r *GormPurchaseRepository) GetByIDForUpdate(id uint) (*models.PurchaseRecord, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

// GetByCode 按核销码获取购买记录
func (r *GormPurchaseRepository) GetByCode(code string) (*models.PurchaseRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return r.first(r.db, "code = ?", code)
}

func (r *GormPurchaseRepository) first(query *gorm.DB, cond string, arg interface{}) (*models.PurchaseRecord, error) {
	if id, ok := arg.(uint); ok && id == 0 {
		return nil, nil
	}
	return findOne[models.PurchaseRecord](query, cond, arg)
}

// List 分页查询购买记录
func (r *GormPurchaseRepository) List(filter PurchaseListFilter) ([]models.PurchaseRecord, int64, error) {
	query := r.db.Model(&models.PurchaseRecord{})
	if filter.SenderID != 0 {
		query = query.Where("sender_id = ?", filter.SenderID)
	}
	if filter.VoucherID != 0 {
		query = query.Where("voucher_id = ?", filter.VoucherID)
	}
	if filter.UsageStatus != "" {
		query = query.Where("usage_status = ?", filter.UsageStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var records []models.PurchaseRecord
	if err := query.Order("id desc").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// TransitionUsage 条件更新使用状态，只有当前状态等于 from 时才生效
func (r *GormPurchaseRepository) TransitionUsage(id uint, from, to string, usedAt *time.Time) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.PurchaseRecord{}).
		Where("id = ? AND usage_status = ?", id, from).
		Updates(map[string]interface{}{
			"usage_status": to,
			"used_at":      usedAt,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
