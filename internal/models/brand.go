package models

import (
	"time"

	"gorm.io/gorm"
)

// Brand 品牌（由目录管理维护，账本只读）
type Brand struct {
	ID        uint           `gorm:"primarykey" json:"id"`                               // 主键
	Name      string         `gorm:"type:varchar(120);not null" json:"name"`             // 品牌名称
	Slug      string         `gorm:"type:varchar(120);uniqueIndex;not null" json:"slug"` // 唯一标识
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`             // 是否启用
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                            // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                     // 软删除时间
}

// TableName 指定表名
func (Brand) TableName() string {
	return "brands"
}
