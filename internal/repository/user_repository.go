package repository

import (
	"context"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
)

// UserRepository 用户目录只读访问，用户由外部系统维护
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	WithTx(tx *gorm.DB) UserRepository
	WithContext(ctx context.Context) UserRepository
}

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 在购买事务内读取买家
func (r *GormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

func (r *GormUserRepository) WithContext(ctx context.Context) UserRepository {
	if ctx == nil {
		return r
	}
	return &GormUserRepository{db: r.db.WithContext(ctx)}
}

// GetByID 读取用户，已软删除或不存在返回 nil
func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	return findOne[models.User](r.db, id)
}
