package repository

import (
	"context"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
)

// RedeemAuditRepository 核销审计数据访问接口（只追加，不提供修改与删除）
type RedeemAuditRepository interface {
	Create(event *models.RedeemAuditEvent) error
	ListByPurchase(purchaseID uint) ([]models.RedeemAuditEvent, error)
	CountByPurchase(purchaseID uint) (int64, error)
	WithTx(tx *gorm.DB) RedeemAuditRepository
	WithContext(ctx context.Context) RedeemAuditRepository
}

// GormRedeemAuditRepository GORM 核销审计仓储实现
type GormRedeemAuditRepository struct {
	db *gorm.DB
}

// NewRedeemAuditRepository 创建核销审计仓储
func NewRedeemAuditRepository(db *gorm.DB) *GormRedeemAuditRepository {
	return &GormRedeemAuditRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRedeemAuditRepository) WithTx(tx *gorm.DB) RedeemAuditRepository {
	if tx == nil {
		return r
	}
	return &GormRedeemAuditRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormRedeemAuditRepository) WithContext(ctx context.Context) RedeemAuditRepository {
	if ctx == nil {
		return r
	}
	return &GormRedeemAuditRepository{db: r.db.WithContext(ctx)}
}

// Create 追加审计事件
func (r *GormRedeemAuditRepository) Create(event *models.RedeemAuditEvent) error {
	return r.db.Create(event).Error
}

// ListByPurchase 按时间顺序列出某条购买记录的审计事件
func (r *GormRedeemAuditRepository) ListByPurchase(purchaseID uint) ([]models.RedeemAuditEvent, error) {
	events := make([]models.RedeemAuditEvent, 0)
	if purchaseID == 0 {
		return events, nil
	}
	if err := r.db.Where("purchase_record_id = ?", purchaseID).
		Order("performed_at asc, id asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountByPurchase 统计某条购买记录的审计事件数
func (r *GormRedeemAuditRepository) CountByPurchase(purchaseID uint) (int64, error) {
	var total int64
	if err := r.db.Model(&models.RedeemAuditEvent{}).
		Where("purchase_record_id = ?", purchaseID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
