package repository

import "time"

// PurchaseListFilter 查询购买记录的过滤条件
type PurchaseListFilter struct {
	Page        int
	PageSize    int
	SenderID    uint
	VoucherID   uint
	UsageStatus string
}

// WalletTransactionListFilter 查询钱包流水的过滤条件
type WalletTransactionListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Type        string
	Direction   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// StatisticsScope 统计口径：时间窗口、品牌与是否包含下架券
// StartAt/EndAt 均为 nil 时统计全部历史
type StatisticsScope struct {
	StartAt         *time.Time
	EndAt           *time.Time
	BrandID         uint
	IncludeInactive bool
}

// VoucherUsageFilter 券使用统计过滤条件
type VoucherUsageFilter struct {
	Page            int
	PageSize        int
	BrandID         uint
	Search          string
	SortBy          string
	SortOrder       string
	IncludeInactive bool
}
