package models

import "time"

// WalletAccount 用户余额账户
type WalletAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                 // 主键
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`                  // 用户ID
	Balance   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // 余额
	CreatedAt time.Time `gorm:"index" json:"created_at"`                              // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                              // 更新时间
}

// TableName 指定表名
func (WalletAccount) TableName() string {
	return "wallet_accounts"
}

// WalletTransaction 余额流水（只追加）
type WalletTransaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`                              // 主键
	UserID        uint      `gorm:"index;uniqueIndex:idx_wallet_txn_user_reference;not null" json:"user_id"` // 用户ID
	Type          string    `gorm:"type:varchar(32);index;not null" json:"type"`       // 流水类型
	Direction     string    `gorm:"type:varchar(8);not null" json:"direction"`         // 方向 in/out
	Amount        Money     `gorm:"type:decimal(20,2);not null" json:"amount"`         // 变动金额
	BalanceBefore Money     `gorm:"type:decimal(20,2);not null" json:"balance_before"` // 变动前余额
	BalanceAfter  Money     `gorm:"type:decimal(20,2);not null" json:"balance_after"`  // 变动后余额
	Reference     string    `gorm:"type:varchar(120);uniqueIndex:idx_wallet_txn_user_reference;not null" json:"reference"` // 业务参考号，同一用户内唯一
	Remark        string    `gorm:"type:varchar(255)" json:"remark"`                   // 备注
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                           // 创建时间
}

// TableName 指定表名
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
