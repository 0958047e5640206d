package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
)

// StatisticsRepository 账本统计聚合查询接口
// 说明：只读聚合，不承载业务规则，也不修改任何数据。
type StatisticsRepository interface {
	GetBrandSold(scope StatisticsScope) ([]BrandQuantityRow, error)
	GetBrandRedeemed(scope StatisticsScope) ([]BrandQuantityRow, error)
	GetDailySold(scope StatisticsScope) ([]DailyQuantityRow, error)
	GetDailyRedeemed(scope StatisticsScope) ([]DailyQuantityRow, error)
	ListExpiringCandidates(includeInactive bool) ([]models.Voucher, error)
	ListLowStock(threshold int, includeInactive bool) ([]models.Voucher, error)
	ListVoucherUsage(filter VoucherUsageFilter) ([]VoucherUsageRow, int64, error)
	WithContext(ctx context.Context) StatisticsRepository
}

// BrandQuantityRow 品牌维度数量汇总
type BrandQuantityRow struct {
	BrandID uint
	Total   int64
}

// DailyQuantityRow 按日汇总数量
type DailyQuantityRow struct {
	Day   string
	Total int64
}

// VoucherUsageRow 单券使用统计原始行
type VoucherUsageRow struct {
	VoucherID uint
	Title     string
	BrandID   *uint
	Quantity  int64
	Unlimited bool
	IsActive  bool
	Sold      int64
	Redeemed  int64
	Remaining int64
	UsageRate float64
}

var voucherUsageSortColumns = map[string]string{
	constants.VoucherUsageSortSold:      "sold",
	constants.VoucherUsageSortRedeemed:  "redeemed",
	constants.VoucherUsageSortRemaining: "remaining",
	constants.VoucherUsageSortUsageRate: "usage_rate",
	constants.VoucherUsageSortQuantity:  "vouchers.quantity",
	constants.VoucherUsageSortID:        "vouchers.id",
}

// GormStatisticsRepository GORM 统计聚合实现
type GormStatisticsRepository struct {
	db *gorm.DB
}

// NewStatisticsRepository 创建统计仓库
func NewStatisticsRepository(db *gorm.DB) *GormStatisticsRepository {
	return &GormStatisticsRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormStatisticsRepository) WithContext(ctx context.Context) StatisticsRepository {
	if ctx == nil {
		return r
	}
	return &GormStatisticsRepository{db: r.db.WithContext(ctx)}
}

// scopeVouchers 统一的券过滤口径
// 默认排除软删除券、下架券与停用品牌下的券，IncludeInactive 时全部纳入
func scopeVouchers(query *gorm.DB, scope StatisticsScope) *gorm.DB {
	if !scope.IncludeInactive {
		query = query.Where("vouchers.deleted_at IS NULL AND vouchers.is_active = ?", true).
			Where("(vouchers.brand_id IS NULL OR EXISTS (SELECT 1 FROM brands WHERE brands.id = vouchers.brand_id AND brands.is_active = ? AND brands.deleted_at IS NULL))", true)
	}
	if scope.BrandID != 0 {
		query = query.Where("vouchers.brand_id = ?", scope.BrandID)
	}
	return query
}

func scopeWindow(query *gorm.DB, column string, scope StatisticsScope) *gorm.DB {
	if scope.StartAt != nil {
		query = query.Where(column+" >= ?", *scope.StartAt)
	}
	if scope.EndAt != nil {
		query = query.Where(column+" < ?", *scope.EndAt)
	}
	return query
}

func hasWindow(scope StatisticsScope) bool {
	return scope.StartAt != nil || scope.EndAt != nil
}

func netRedeemedExpr(table string) string {
	return fmt.Sprintf("COALESCE(SUM(CASE WHEN %[1]s.action = '%[2]s' THEN %[1]s.quantity WHEN %[1]s.action = '%[3]s' THEN -%[1]s.quantity ELSE 0 END), 0)",
		table, constants.RedeemActionRedeem, constants.RedeemActionUndoRedeem)
}

func (r *GormStatisticsRepository) purchaseBase(scope StatisticsScope) *gorm.DB {
	query := r.db.Table("purchase_records").
		Joins("JOIN vouchers ON vouchers.id = purchase_records.voucher_id")
	return scopeWindow(scopeVouchers(query, scope), "purchase_records.created_at", scope)
}

// auditBase 窗口内的核销审计事件
// 窗口起点之后没有对应核销的撤销事件被剔除，单张购买记录在窗口内的净核销只会是 0 或其张数
func (r *GormStatisticsRepository) auditBase(scope StatisticsScope) *gorm.DB {
	query := r.db.Table("redeem_audit_events").
		Joins("JOIN vouchers ON vouchers.id = redeem_audit_events.voucher_id")
	query = scopeWindow(scopeVouchers(query, scope), "redeem_audit_events.performed_at", scope)
	if scope.StartAt != nil {
		query = query.Where(`NOT (redeem_audit_events.action = ? AND NOT EXISTS (
			SELECT 1 FROM redeem_audit_events AS earlier
			WHERE earlier.purchase_record_id = redeem_audit_events.purchase_record_id
				AND earlier.action = ?
				AND earlier.id < redeem_audit_events.id
				AND earlier.performed_at >= ?))`,
			constants.RedeemActionUndoRedeem, constants.RedeemActionRedeem, *scope.StartAt)
	}
	return query
}

// GetBrandSold 按品牌汇总售出张数
func (r *GormStatisticsRepository) GetBrandSold(scope StatisticsScope) ([]BrandQuantityRow, error) {
	rows := make([]BrandQuantityRow, 0)
	if err := r.purchaseBase(scope).
		Select("vouchers.brand_id as brand_id, COALESCE(SUM(purchase_records.quantity), 0) as total").
		Where("vouchers.brand_id IS NOT NULL").
		Group("vouchers.brand_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetBrandRedeemed 按品牌汇总核销张数
// 无时间窗口时直接汇总券上的核销计数，有窗口时按审计事件净值汇总
func (r *GormStatisticsRepository) GetBrandRedeemed(scope StatisticsScope) ([]BrandQuantityRow, error) {
	rows := make([]BrandQuantityRow, 0)
	var query *gorm.DB
	if hasWindow(scope) {
		query = r.auditBase(scope).
			Select("vouchers.brand_id as brand_id, " + netRedeemedExpr("redeem_audit_events") + " as total")
	} else {
		query = scopeVouchers(r.db.Table("vouchers"), scope).
			Select("vouchers.brand_id as brand_id, COALESCE(SUM(vouchers.redeemed), 0) as total")
	}
	if err := query.
		Where("vouchers.brand_id IS NOT NULL").
		Group("vouchers.brand_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetDailySold 按 UTC 自然日汇总售出张数
func (r *GormStatisticsRepository) GetDailySold(scope StatisticsScope) ([]DailyQuantityRow, error) {
	rows := make([]DailyQuantityRow, 0)
	dayExpr := utcDayExpr(r.db, "purchase_records.created_at")
	if err := r.purchaseBase(scope).
		Select(fmt.Sprintf("%s as day, COALESCE(SUM(purchase_records.quantity), 0) as total", dayExpr)).
		Group(dayExpr).
		Order("day asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetDailyRedeemed 按 UTC 自然日汇总核销净张数（核销减撤销）
func (r *GormStatisticsRepository) GetDailyRedeemed(scope StatisticsScope) ([]DailyQuantityRow, error) {
	rows := make([]DailyQuantityRow, 0)
	dayExpr := utcDayExpr(r.db, "redeem_audit_events.performed_at")
	if err := r.auditBase(scope).
		Select(fmt.Sprintf("%s as day, %s as total", dayExpr, netRedeemedExpr("redeem_audit_events"))).
		Group(dayExpr).
		Order("day asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiringCandidates 列出设置了有效期的券，到期判断由服务层按月份计算
func (r *GormStatisticsRepository) ListExpiringCandidates(includeInactive bool) ([]models.Voucher, error) {
	vouchers := make([]models.Voucher, 0)
	query := scopeVouchers(r.db.Unscoped().Model(&models.Voucher{}), StatisticsScope{IncludeInactive: includeInactive}).
		Where("vouchers.valid_months > 0")
	if err := query.Order("vouchers.id asc").Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

// ListLowStock 列出库存不高于阈值的限量券
func (r *GormStatisticsRepository) ListLowStock(threshold int, includeInactive bool) ([]models.Voucher, error) {
	vouchers := make([]models.Voucher, 0)
	query := scopeVouchers(r.db.Unscoped().Model(&models.Voucher{}), StatisticsScope{IncludeInactive: includeInactive}).
		Where("vouchers.unlimited = ? AND vouchers.quantity <= ?", false, threshold)
	if err := query.Order("vouchers.quantity asc, vouchers.id asc").Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

// ListVoucherUsage 分页查询单券使用统计
func (r *GormStatisticsRepository) ListVoucherUsage(filter VoucherUsageFilter) ([]VoucherUsageRow, int64, error) {
	scope := StatisticsScope{BrandID: filter.BrandID, IncludeInactive: filter.IncludeInactive}
	base := func() *gorm.DB {
		query := scopeVouchers(r.db.Table("vouchers"), scope)
		if search := strings.TrimSpace(filter.Search); search != "" {
			condition, argCount := buildLikeCondition(r.db, []string{"vouchers.title", "vouchers.description"})
			query = query.Where(condition, repeatLikeArgs("%"+search+"%", argCount)...)
		}
		return query
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	soldSub := r.db.Table("purchase_records").
		Select("voucher_id, SUM(quantity) as total").
		Group("voucher_id")

	sortColumn, ok := voucherUsageSortColumns[strings.ToLower(strings.TrimSpace(filter.SortBy))]
	if !ok {
		sortColumn = voucherUsageSortColumns[constants.VoucherUsageSortSold]
	}
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(filter.SortOrder), constants.SortOrderAsc) {
		direction = "ASC"
	}

	rows := make([]VoucherUsageRow, 0)
	query := base().
		Select(`
			vouchers.id as voucher_id,
			vouchers.title as title,
			vouchers.brand_id as brand_id,
			vouchers.quantity as quantity,
			vouchers.unlimited as unlimited,
			vouchers.is_active as is_active,
			COALESCE(sold.total, 0) as sold,
			vouchers.redeemed as redeemed,
			COALESCE(sold.total, 0) - vouchers.redeemed as remaining,
			CASE WHEN COALESCE(sold.total, 0) > 0 THEN vouchers.redeemed * 1.0 / sold.total ELSE 0 END as usage_rate
		`).
		Joins("LEFT JOIN (?) AS sold ON sold.voucher_id = vouchers.id", soldSub).
		Order(fmt.Sprintf("%s %s, vouchers.id ASC", sortColumn, direction))
	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
