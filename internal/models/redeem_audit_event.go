package models

import "time"

// RedeemAuditEvent 核销审计事件，只追加不修改
type RedeemAuditEvent struct {
	ID               uint      `gorm:"primarykey" json:"id"`                             // 主键
	PurchaseRecordID uint      `gorm:"index;not null" json:"purchase_record_id"`         // 购买记录ID
	VoucherID        uint      `gorm:"index;not null" json:"voucher_id"`                 // 代金券ID
	PerformedBy      string    `gorm:"type:varchar(120);not null" json:"performed_by"`   // 操作人
	Action           string    `gorm:"type:varchar(24);index;not null" json:"action"`    // 动作 redeem/undo_redeem
	PerformedAt      time.Time `gorm:"index;not null" json:"performed_at"`               // 操作时间
	Quantity         int       `gorm:"not null" json:"quantity"`                         // 操作时的购买张数
	PreviousStatus   string    `gorm:"type:varchar(16);not null" json:"previous_status"` // 变更前状态
	NewStatus        string    `gorm:"type:varchar(16);not null" json:"new_status"`      // 变更后状态
}

// TableName 指定表名
func (RedeemAuditEvent) TableName() string {
	return "redeem_audit_events"
}
