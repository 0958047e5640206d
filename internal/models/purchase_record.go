package models

import (
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
)

// PurchaseRecord 购买（交付）记录，创建后仅使用状态可变，不做物理删除
type PurchaseRecord struct {
	ID               uint       `gorm:"primarykey" json:"id"`                                                 // 主键
	Code             string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`                    // 核销码
	VoucherID        uint       `gorm:"index;not null" json:"voucher_id"`                                     // 代金券ID
	SenderID         uint       `gorm:"index;not null" json:"sender_id"`                                      // 购买人ID
	RecipientName    string     `gorm:"type:varchar(120)" json:"recipient_name"`                              // 收券人姓名
	RecipientEmail   string     `gorm:"type:varchar(255)" json:"recipient_email"`                             // 收券人邮箱
	RecipientPhone   string     `gorm:"type:varchar(32)" json:"recipient_phone"`                              // 收券人电话
	RecipientMessage string     `gorm:"type:varchar(500)" json:"recipient_message"`                           // 赠言
	Quantity         int        `gorm:"not null" json:"quantity"`                                             // 购买张数
	UnitPrice        Money      `gorm:"type:decimal(20,2);not null" json:"unit_price"`                        // 单价
	TotalAmount      Money      `gorm:"type:decimal(20,2);not null" json:"total_amount"`                      // 总价
	UsageStatus      string     `gorm:"type:varchar(16);index;not null;default:'unused'" json:"usage_status"` // 使用状态
	UsedAt           *time.Time `gorm:"index" json:"used_at"`                                                 // 核销时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                                              // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                                           // 更新时间
	Voucher          *Voucher   `gorm:"foreignKey:VoucherID" json:"voucher,omitempty"`                        // 代金券信息
}

// TableName 指定表名
func (PurchaseRecord) TableName() string {
	return "purchase_records"
}

// IsUsed 是否已核销
func (p *PurchaseRecord) IsUsed() bool {
	return p != nil && p.UsageStatus == constants.UsageStatusUsed
}
