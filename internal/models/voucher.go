package models

import (
	"time"

	"gorm.io/gorm"
)

// Voucher 代金券库存单元
type Voucher struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                    // 主键
	Title        string         `gorm:"type:varchar(200);not null" json:"title"`                 // 标题
	Description  string         `gorm:"type:text" json:"description"`                            // 描述
	Amount       Money          `gorm:"type:decimal(20,2);not null" json:"amount"`               // 面额或折扣百分比
	IsPercentage bool           `gorm:"not null;default:false" json:"is_percentage"`             // 是否为百分比券
	SalePrice    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"sale_price"` // 百分比券售价
	BrandID      *uint          `gorm:"index" json:"brand_id,omitempty"`                         // 品牌ID
	ValidMonths  int            `gorm:"not null;default:0" json:"valid_months"`                  // 有效月数，0 表示长期
	Unlimited    bool           `gorm:"not null;default:false" json:"unlimited"`                 // 是否不限库存
	Quantity     int            `gorm:"not null;default:0" json:"quantity"`                      // 剩余库存
	Redeemed     int            `gorm:"not null;default:0" json:"redeemed"`                      // 累计核销张数
	IsActive     bool           `gorm:"index;not null;default:true" json:"is_active"`            // 是否上架
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                 // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
	Brand        *Brand         `gorm:"foreignKey:BrandID" json:"brand,omitempty"`               // 品牌信息
}

// TableName 指定表名
func (Voucher) TableName() string {
	return "vouchers"
}

// UnitPrice 单张售价：固定面额券按面额，百分比券按售价
func (v *Voucher) UnitPrice() Money {
	if v == nil {
		return Money{}
	}
	if v.IsPercentage {
		return v.SalePrice
	}
	return v.Amount
}

// ExpiresAt 目录级过期时间，ValidMonths 为 0 时返回 nil
func (v *Voucher) ExpiresAt() *time.Time {
	if v == nil || v.ValidMonths <= 0 {
		return nil
	}
	at := v.CreatedAt.AddDate(0, v.ValidMonths, 0)
	return &at
}
