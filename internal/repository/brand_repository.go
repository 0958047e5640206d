package repository

import (
	"context"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
)

// BrandRepository 品牌只读访问接口
type BrandRepository interface {
	Exists(id uint) (bool, error)
	ListByIDs(ids []uint, includeInactive bool) ([]models.Brand, error)
	Create(brand *models.Brand) error
	WithContext(ctx context.Context) BrandRepository
}

// GormBrandRepository GORM 品牌仓储实现
type GormBrandRepository struct {
	db *gorm.DB
}

// NewBrandRepository 创建品牌仓储
func NewBrandRepository(db *gorm.DB) *GormBrandRepository {
	return &GormBrandRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormBrandRepository) WithContext(ctx context.Context) BrandRepository {
	if ctx == nil {
		return r
	}
	return &GormBrandRepository{db: r.db.WithContext(ctx)}
}

// Exists 品牌是否存在（软删除视为不存在）
func (r *GormBrandRepository) Exists(id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}
	var total int64
	if err := r.db.Model(&models.Brand{}).Where("id = ?", id).Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// ListByIDs 批量获取品牌，includeInactive 时包含停用与软删除的品牌
func (r *GormBrandRepository) ListByIDs(ids []uint, includeInactive bool) ([]models.Brand, error) {
	brands := make([]models.Brand, 0)
	if len(ids) == 0 {
		return brands, nil
	}
	query := r.db.Where("id IN ?", ids)
	if includeInactive {
		query = query.Unscoped()
	} else {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("id asc").Find(&brands).Error; err != nil {
		return nil, err
	}
	return brands, nil
}

// Create 创建品牌
func (r *GormBrandRepository) Create(brand *models.Brand) error {
	return r.db.Create(brand).Error
}
