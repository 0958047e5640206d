package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/cache"
	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"
	"github.com/dujiao-next/voucher-ledger/internal/queue"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"golang.org/x/sync/singleflight"
)

const (
	leaderboardDefaultLimit = 10
	leaderboardMaxLimit     = 100
	statisticsMaxDays       = 90
	trendDefaultDays        = 7
	voucherUsageMaxPageSize = 100
	statisticsDayLayout     = "2006-01-02"
)

// StatisticsCache 统计结果缓存
type StatisticsCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DelByPrefix(ctx context.Context, keyPrefix string) (int64, error)
}

// RefreshEnqueuer 投递统计重算任务
type RefreshEnqueuer interface {
	EnqueueStatisticsRefresh(payload queue.StatisticsRefreshPayload) error
}

// StatisticsService 统计报表服务
// 说明：只读聚合，结果缓存并标注生成时间与过期时间，缓存不作为权威数据。
type StatisticsService struct {
	repo      repository.StatisticsRepository
	brandRepo repository.BrandRepository
	cache     StatisticsCache
	enqueuer  RefreshEnqueuer
	metrics   *metrics.LedgerMetrics
	cfg       config.StatisticsConfig
	group     singleflight.Group
	now       func() time.Time
}

// NewStatisticsService 创建统计服务，cache 与 enqueuer 可为空
func NewStatisticsService(
	repo repository.StatisticsRepository,
	brandRepo repository.BrandRepository,
	store StatisticsCache,
	enqueuer RefreshEnqueuer,
	m *metrics.LedgerMetrics,
	cfg config.StatisticsConfig,
) *StatisticsService {
	return &StatisticsService{
		repo:      repo,
		brandRepo: brandRepo,
		cache:     store,
		enqueuer:  enqueuer,
		metrics:   m,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LeaderboardInput 品牌排行榜查询输入，Days 为 0 表示全部历史
type LeaderboardInput struct {
	Metric          string
	Limit           int
	Days            int
	IncludeInactive bool
	ForceRefresh    bool
}

// TrendInput 使用趋势查询输入
type TrendInput struct {
	Days            int
	BrandID         uint
	IncludeInactive bool
	ForceRefresh    bool
}

// AlertInput 告警查询输入，零值使用配置默认值
type AlertInput struct {
	Days            int
	Threshold       *int
	IncludeInactive bool
}

// VoucherUsageInput 单券使用统计输入
type VoucherUsageInput struct {
	BrandID         uint
	Search          string
	SortBy          string
	SortOrder       string
	Page            int
	PageSize        int
	IncludeInactive bool
}

// ReportMeta 缓存元信息
type ReportMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	StaleAfter  time.Time `json:"stale_after"`
	Cached      bool      `json:"cached"`
}

func (m *ReportMeta) markCached() {
	m.Cached = true
}

// BrandLeaderboardItem 品牌排行项
type BrandLeaderboardItem struct {
	BrandID        uint    `json:"brand_id"`
	BrandName      string  `json:"brand_name"`
	Sold           int64   `json:"sold"`
	Redeemed       int64   `json:"redeemed"`
	Remaining      int64   `json:"remaining"`
	RedemptionRate float64 `json:"redemption_rate"`
}

// BrandLeaderboardResponse 品牌排行榜
type BrandLeaderboardResponse struct {
	ReportMeta
	Metric string                 `json:"metric"`
	Limit  int                    `json:"limit"`
	Days   int                    `json:"days"`
	From   string                 `json:"from,omitempty"`
	To     string                 `json:"to,omitempty"`
	Items  []BrandLeaderboardItem `json:"items"`
}

// UsageTrendPoint 趋势点
type UsageTrendPoint struct {
	Date     string `json:"date"`
	Sold     int64  `json:"sold"`
	Redeemed int64  `json:"redeemed"`
}

// UsageTrendResponse 使用趋势
type UsageTrendResponse struct {
	ReportMeta
	Days          int               `json:"days"`
	BrandID       uint              `json:"brand_id,omitempty"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	TotalSold     int64             `json:"total_sold"`
	TotalRedeemed int64             `json:"total_redeemed"`
	Points        []UsageTrendPoint `json:"points"`
}

// ExpiringVoucherItem 即将到期的券
type ExpiringVoucherItem struct {
	VoucherID uint      `json:"voucher_id"`
	Title     string    `json:"title"`
	BrandID   *uint     `json:"brand_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	DaysLeft  int       `json:"days_left"`
}

// LowStockItem 低库存券
type LowStockItem struct {
	VoucherID uint   `json:"voucher_id"`
	Title     string `json:"title"`
	BrandID   *uint  `json:"brand_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// VoucherUsageItem 单券使用统计
type VoucherUsageItem struct {
	VoucherID uint    `json:"voucher_id"`
	Title     string  `json:"title"`
	BrandID   *uint   `json:"brand_id,omitempty"`
	Quantity  int64   `json:"quantity"`
	Unlimited bool    `json:"unlimited"`
	IsActive  bool    `json:"is_active"`
	Sold      int64   `json:"sold"`
	Redeemed  int64   `json:"redeemed"`
	Remaining int64   `json:"remaining"`
	UsageRate float64 `json:"usage_rate"`
}

// VoucherUsagePage 单券使用统计分页结果
type VoucherUsagePage struct {
	Items    []VoucherUsageItem `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// AlertScanResult 告警扫描结果
type AlertScanResult struct {
	LowStock []LowStockItem        `json:"low_stock"`
	Expiring []ExpiringVoucherItem `json:"expiring"`
}

// BrandLeaderboard 品牌排行榜
func (s *StatisticsService) BrandLeaderboard(ctx context.Context, input LeaderboardInput) (*BrandLeaderboardResponse, error) {
	metric := strings.ToLower(strings.TrimSpace(input.Metric))
	if metric == "" {
		metric = constants.LeaderboardMetricSold
	}
	if !isLeaderboardMetric(metric) {
		return nil, ErrLeaderboardMetricInvalid
	}
	limit := input.Limit
	if limit <= 0 {
		limit = leaderboardDefaultLimit
	}
	if limit > leaderboardMaxLimit {
		limit = leaderboardMaxLimit
	}
	if input.Days < 0 || input.Days > statisticsMaxDays {
		return nil, ErrStatisticsRangeInvalid
	}

	endDay := ""
	if input.Days > 0 {
		_, endAt := trailingWindow(s.now(), input.Days)
		endDay = endAt.AddDate(0, 0, -1).Format(statisticsDayLayout)
	}
	key := cache.LeaderboardKey(metric, limit, input.Days, input.IncludeInactive, endDay)
	return loadReport(ctx, s, "leaderboard", key, input.ForceRefresh, func(ctx context.Context, now time.Time) (*BrandLeaderboardResponse, error) {
		return s.computeLeaderboard(ctx, now, metric, limit, input.Days, input.IncludeInactive)
	})
}

func (s *StatisticsService) computeLeaderboard(ctx context.Context, now time.Time, metric string, limit, days int, includeInactive bool) (*BrandLeaderboardResponse, error) {
	scope := repository.StatisticsScope{IncludeInactive: includeInactive}
	response := &BrandLeaderboardResponse{Metric: metric, Limit: limit, Days: days}
	if days > 0 {
		startAt, endAt := trailingWindow(now, days)
		scope.StartAt, scope.EndAt = &startAt, &endAt
		response.From = startAt.Format(statisticsDayLayout)
		response.To = endAt.AddDate(0, 0, -1).Format(statisticsDayLayout)
	}

	repo := s.repo.WithContext(ctx)
	soldRows, err := repo.GetBrandSold(scope)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	redeemedRows, err := repo.GetBrandRedeemed(scope)
	if err != nil {
		return nil, wrapPersistence(err)
	}

	totals := make(map[uint]*BrandLeaderboardItem)
	ids := make([]uint, 0, len(soldRows)+len(redeemedRows))
	entry := func(brandID uint) *BrandLeaderboardItem {
		item, ok := totals[brandID]
		if !ok {
			item = &BrandLeaderboardItem{BrandID: brandID}
			totals[brandID] = item
			ids = append(ids, brandID)
		}
		return item
	}
	for _, row := range soldRows {
		entry(row.BrandID).Sold += row.Total
	}
	for _, row := range redeemedRows {
		entry(row.BrandID).Redeemed += row.Total
	}

	brands, err := s.brandRepo.WithContext(ctx).ListByIDs(ids, includeInactive)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	items := make([]BrandLeaderboardItem, 0, len(brands))
	for _, brand := range brands {
		item := totals[brand.ID]
		item.BrandName = strings.TrimSpace(brand.Name)
		item.Remaining = item.Sold - item.Redeemed
		item.RedemptionRate = ratio(item.Redeemed, item.Sold)
		items = append(items, *item)
	}
	sortLeaderboard(items, metric)
	if len(items) > limit {
		items = items[:limit]
	}
	response.Items = items
	response.ReportMeta = s.newMeta(now)
	return response, nil
}

// UsageTrend 按 UTC 自然日返回售出与核销净数量，无数据的日期补零
func (s *StatisticsService) UsageTrend(ctx context.Context, input TrendInput) (*UsageTrendResponse, error) {
	days := input.Days
	if days == 0 {
		days = s.defaultTrendDays()
	}
	if days < 0 || days > statisticsMaxDays {
		return nil, ErrStatisticsRangeInvalid
	}
	now := s.now()
	_, endAt := trailingWindow(now, days)
	endDay := endAt.AddDate(0, 0, -1).Format(statisticsDayLayout)

	key := cache.TrendKey(days, input.BrandID, input.IncludeInactive, endDay)
	return loadReport(ctx, s, "trend", key, input.ForceRefresh, func(ctx context.Context, now time.Time) (*UsageTrendResponse, error) {
		return s.computeTrend(ctx, now, days, input.BrandID, input.IncludeInactive)
	})
}

func (s *StatisticsService) computeTrend(ctx context.Context, now time.Time, days int, brandID uint, includeInactive bool) (*UsageTrendResponse, error) {
	startAt, endAt := trailingWindow(now, days)
	scope := repository.StatisticsScope{
		StartAt:         &startAt,
		EndAt:           &endAt,
		BrandID:         brandID,
		IncludeInactive: includeInactive,
	}

	repo := s.repo.WithContext(ctx)
	soldRows, err := repo.GetDailySold(scope)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	redeemedRows, err := repo.GetDailyRedeemed(scope)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	soldMap := make(map[string]int64, len(soldRows))
	for _, row := range soldRows {
		soldMap[normalizeDay(row.Day)] += row.Total
	}
	redeemedMap := make(map[string]int64, len(redeemedRows))
	for _, row := range redeemedRows {
		redeemedMap[normalizeDay(row.Day)] += row.Total
	}

	response := &UsageTrendResponse{
		Days:    days,
		BrandID: brandID,
		From:    startAt.Format(statisticsDayLayout),
		To:      endAt.AddDate(0, 0, -1).Format(statisticsDayLayout),
		Points:  make([]UsageTrendPoint, 0, days),
	}
	for cursor := startAt; cursor.Before(endAt); cursor = cursor.AddDate(0, 0, 1) {
		day := cursor.Format(statisticsDayLayout)
		point := UsageTrendPoint{Date: day, Sold: soldMap[day], Redeemed: redeemedMap[day]}
		response.TotalSold += point.Sold
		response.TotalRedeemed += point.Redeemed
		response.Points = append(response.Points, point)
	}
	response.ReportMeta = s.newMeta(now)
	return response, nil
}

// ExpiringSoon 列出在 [now, now+days] 内到期的券，按到期时间升序
func (s *StatisticsService) ExpiringSoon(ctx context.Context, input AlertInput) ([]ExpiringVoucherItem, error) {
	days := input.Days
	if days == 0 {
		days = s.cfg.ExpiringDays
	}
	if days == 0 {
		days = 30
	}
	if days < 0 || days > 3650 {
		return nil, ErrStatisticsRangeInvalid
	}
	vouchers, err := s.repo.WithContext(ctx).ListExpiringCandidates(input.IncludeInactive)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	now := s.now()
	deadline := now.AddDate(0, 0, days)
	items := make([]ExpiringVoucherItem, 0)
	for i := range vouchers {
		expiresAt := vouchers[i].ExpiresAt()
		if expiresAt == nil || expiresAt.Before(now) || expiresAt.After(deadline) {
			continue
		}
		items = append(items, ExpiringVoucherItem{
			VoucherID: vouchers[i].ID,
			Title:     vouchers[i].Title,
			BrandID:   vouchers[i].BrandID,
			ExpiresAt: expiresAt.UTC(),
			DaysLeft:  int(expiresAt.Sub(now).Hours() / 24),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].VoucherID < items[j].VoucherID
		}
		return items[i].ExpiresAt.Before(items[j].ExpiresAt)
	})
	return items, nil
}

// LowStock 列出库存不高于阈值的限量券，按库存升序
func (s *StatisticsService) LowStock(ctx context.Context, input AlertInput) ([]LowStockItem, error) {
	threshold := s.cfg.LowStockThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 {
		return nil, ErrThresholdInvalid
	}
	vouchers, err := s.repo.WithContext(ctx).ListLowStock(threshold, input.IncludeInactive)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	items := make([]LowStockItem, 0, len(vouchers))
	for _, voucher := range vouchers {
		items = append(items, LowStockItem{
			VoucherID: voucher.ID,
			Title:     voucher.Title,
			BrandID:   voucher.BrandID,
			Quantity:  voucher.Quantity,
		})
	}
	return items, nil
}

// VoucherUsage 单券使用统计
func (s *StatisticsService) VoucherUsage(ctx context.Context, input VoucherUsageInput) (*VoucherUsagePage, error) {
	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > voucherUsageMaxPageSize {
		pageSize = voucherUsageMaxPageSize
	}
	rows, total, err := s.repo.WithContext(ctx).ListVoucherUsage(repository.VoucherUsageFilter{
		Page:            page,
		PageSize:        pageSize,
		BrandID:         input.BrandID,
		Search:          input.Search,
		SortBy:          input.SortBy,
		SortOrder:       input.SortOrder,
		IncludeInactive: input.IncludeInactive,
	})
	if err != nil {
		return nil, wrapPersistence(err)
	}
	items := make([]VoucherUsageItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, VoucherUsageItem{
			VoucherID: row.VoucherID,
			Title:     row.Title,
			BrandID:   row.BrandID,
			Quantity:  row.Quantity,
			Unlimited: row.Unlimited,
			IsActive:  row.IsActive,
			Sold:      row.Sold,
			Redeemed:  row.Redeemed,
			Remaining: row.Remaining,
			UsageRate: ratio(row.Redeemed, row.Sold),
		})
	}
	return &VoucherUsagePage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// RefreshCache 重算默认口径的排行榜与趋势并覆盖缓存
func (s *StatisticsService) RefreshCache(ctx context.Context) error {
	metricsList := []string{
		constants.LeaderboardMetricSold,
		constants.LeaderboardMetricRedeemed,
		constants.LeaderboardMetricRemaining,
		constants.LeaderboardMetricRedemptionRate,
	}
	for _, metric := range metricsList {
		if _, err := s.BrandLeaderboard(ctx, LeaderboardInput{Metric: metric, ForceRefresh: true}); err != nil {
			return err
		}
	}
	_, err := s.UsageTrend(ctx, TrendInput{ForceRefresh: true})
	return err
}

// ScanAlerts 汇总低库存与即将到期的券
func (s *StatisticsService) ScanAlerts(ctx context.Context, threshold, days int) (*AlertScanResult, error) {
	input := AlertInput{Days: days}
	if threshold > 0 {
		input.Threshold = &threshold
	}
	lowStock, err := s.LowStock(ctx, input)
	if err != nil {
		return nil, err
	}
	expiring, err := s.ExpiringSoon(ctx, input)
	if err != nil {
		return nil, err
	}
	return &AlertScanResult{LowStock: lowStock, Expiring: expiring}, nil
}

// LedgerChanged 账本写入后失效统计缓存并投递重算任务，失败只记录日志
func (s *StatisticsService) LedgerChanged(ctx context.Context, source string) {
	if s.cache != nil {
		if _, err := s.cache.DelByPrefix(ctx, cache.StatisticsKeyPrefix); err != nil {
			logger.Warnw("statistics_cache_invalidate_failed", "source", source, "error", err)
		}
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueStatisticsRefresh(queue.StatisticsRefreshPayload{Source: "ledger"}); err != nil {
			logger.Warnw("statistics_refresh_enqueue_failed", "source", source, "error", err)
		}
	}
}

type cachedReport interface {
	markCached()
}

// loadReport 读缓存，未命中时经 singleflight 合并并发计算后回写
// 计算不继承调用方的取消信号，只受统计超时约束；调用方取消时只放弃等待
func loadReport[T any](ctx context.Context, s *StatisticsService, report, key string, force bool, compute func(ctx context.Context, now time.Time) (*T, error)) (*T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !force && s.cache != nil {
		var cached T
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warnw("statistics_cache_read_failed", "key", key, "error", err)
		}
		if hit {
			s.metrics.IncCache(report, "hit")
			if marker, ok := any(&cached).(cachedReport); ok {
				marker.markCached()
			}
			return &cached, nil
		}
		s.metrics.IncCache(report, "miss")
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ComputeTimeout())
		defer cancel()
		result, err := compute(computeCtx, s.now())
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetJSON(computeCtx, key, result, s.cfg.CacheTTL()); err != nil {
				logger.Warnw("statistics_cache_write_failed", "key", key, "error", err)
			}
		}
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, wrapPersistence(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*T), nil
	}
}

func (s *StatisticsService) newMeta(now time.Time) ReportMeta {
	return ReportMeta{GeneratedAt: now, StaleAfter: now.Add(s.cfg.CacheTTL())}
}

func (s *StatisticsService) defaultTrendDays() int {
	if s.cfg.DefaultTrendDays > 0 {
		return s.cfg.DefaultTrendDays
	}
	return trendDefaultDays
}

// trailingWindow 以 now 所在 UTC 日为最后一天、共 days 天的 [start, end) 窗口
func trailingWindow(now time.Time, days int) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(days - 1)), today.AddDate(0, 0, 1)
}

func normalizeDay(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > len(statisticsDayLayout) {
		return value[:len(statisticsDayLayout)]
	}
	return value
}

func isLeaderboardMetric(metric string) bool {
	switch metric {
	case constants.LeaderboardMetricSold,
		constants.LeaderboardMetricRedeemed,
		constants.LeaderboardMetricRemaining,
		constants.LeaderboardMetricRedemptionRate:
		return true
	}
	return false
}

func leaderboardValue(item BrandLeaderboardItem, metric string) float64 {
	switch metric {
	case constants.LeaderboardMetricRedeemed:
		return float64(item.Redeemed)
	case constants.LeaderboardMetricRemaining:
		return float64(item.Remaining)
	case constants.LeaderboardMetricRedemptionRate:
		return item.RedemptionRate
	default:
		return float64(item.Sold)
	}
}

// sortLeaderboard 按指标降序，相同值按品牌ID升序
func sortLeaderboard(items []BrandLeaderboardItem, metric string) {
	sort.SliceStable(items, func(i, j int) bool {
		left, right := leaderboardValue(items[i], metric), leaderboardValue(items[j], metric)
		if left == right {
			return items[i].BrandID < items[j].BrandID
		}
		return left > right
	})
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 10000
}
