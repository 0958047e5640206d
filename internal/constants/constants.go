package constants

// 购买记录使用状态
const (
	UsageStatusUnused = "unused"
	UsageStatusUsed   = "used"
)

// 核销审计动作
const (
	RedeemActionRedeem     = "redeem"
	RedeemActionUndoRedeem = "undo_redeem"
)

// 钱包流水类型与方向
const (
	WalletTxnTypePurchase = "purchase"
	WalletTxnTypeTopUp    = "top_up"

	WalletTxnDirectionIn  = "in"
	WalletTxnDirectionOut = "out"
)

// 用户状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 排行榜排序指标
const (
	LeaderboardMetricSold           = "sold"
	LeaderboardMetricRedeemed       = "redeemed"
	LeaderboardMetricRemaining      = "remaining"
	LeaderboardMetricRedemptionRate = "redemption_rate"
)

// 券使用统计排序字段
const (
	VoucherUsageSortSold      = "sold"
	VoucherUsageSortRedeemed  = "redeemed"
	VoucherUsageSortRemaining = "remaining"
	VoucherUsageSortUsageRate = "usage_rate"
	VoucherUsageSortQuantity  = "quantity"
	VoucherUsageSortID        = "id"
)

// 排序方向
const (
	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// 异步任务类型
const (
	TaskStatisticsRefresh = "statistics:refresh"
	TaskLedgerAlertScan   = "ledger:alert_scan"
)

// 异步队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)
