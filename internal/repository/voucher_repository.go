package repository

import (
	"context"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoucherRepository 代金券库存数据访问接口
type VoucherRepository interface {
	GetByID(id uint) (*models.Voucher, error)
	GetByIDForUpdate(id uint) (*models.Voucher, error)
	Create(voucher *models.Voucher) error
	DecrementStock(id uint, quantity int) (int64, error)
	AdjustRedeemed(id uint, delta int) (int64, error)
	WithTx(tx *gorm.DB) VoucherRepository
	WithContext(ctx context.Context) VoucherRepository
}

// GormVoucherRepository GORM 代金券仓储实现
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建代金券仓储
func NewVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// WithTx 绑定事务
func (r *GormVoucherRepository) WithTx(tx *gorm.DB) VoucherRepository {
	if tx == nil {
		return r
	}
	return &GormVoucherRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormVoucherRepository) WithContext(ctx context.Context) VoucherRepository {
	if ctx == nil {
		return r
	}
	return &GormVoucherRepository{db: r.db.WithContext(ctx)}
}

// GetByID 获取未删除的代金券
func (r *GormVoucherRepository) GetByID(id uint) (*models.Voucher, error) {
	if id == 0 {
		return nil, nil
	}
	return findOne[models.Voucher](r.db, id)
}

// GetByIDForUpdate 加锁获取代金券
func (r *GormVoucherRepository) GetByIDForUpdate(id uint) (*models.Voucher, error) {
	if id == 0 {
		return nil, nil
	}
	return findOne[models.Voucher](r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// Create 创建代金券
func (r *GormVoucherRepository) Create(voucher *models.Voucher) error {
	return r.db.Create(voucher).Error
}

// DecrementStock 条件扣减库存，返回受影响行数，0 表示库存不足或已被并发修改
func (r *GormVoucherRepository) DecrementStock(id uint, quantity int) (int64, error) {
	if id == 0 || quantity <= 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Voucher{}).
		Where("id = ? AND unlimited = ? AND quantity >= ?", id, false, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// AdjustRedeemed 调整累计核销数，负数调整不会低于 0
// 已软删除的券也需要维护计数，因此不带软删除条件
func (r *GormVoucherRepository) AdjustRedeemed(id uint, delta int) (int64, error) {
	if id == 0 || delta == 0 {
		return 0, nil
	}
	query := r.db.Unscoped().Model(&models.Voucher{}).Where("id = ?", id)
	if delta < 0 {
		query = query.Where("redeemed >= ?", -delta)
	}
	result := query.Update("redeemed", gorm.Expr("redeemed + ?", delta))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
