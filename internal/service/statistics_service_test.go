package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/models"
)

type statisticsFixture struct {
	brandA   *models.Brand
	brandB   *models.Brand
	voucherA *models.Voucher
	voucherB *models.Voucher
}

func seedStatisticsFixture(t *testing.T, env *ledgerTestEnv) statisticsFixture {
	t.Helper()
	ctx := context.Background()
	fx := statisticsFixture{
		brandA: env.createBrand(t, "alpha"),
		brandB: env.createBrand(t, "beta"),
	}
	fx.voucherA = env.createVoucher(t, &models.Voucher{Amount: models.MustMoney("1"), Quantity: 50, BrandID: &fx.brandA.ID})
	fx.voucherB = env.createVoucher(t, &models.Voucher{Amount: models.MustMoney("1"), Quantity: 50, BrandID: &fx.brandB.ID})
	buyer := env.createUser(t, "100")

	buy := func(voucherID uint, quantity int) *models.PurchaseRecord {
		record, err := env.purchase.Buy(ctx, BuyInput{VoucherID: voucherID, BuyerID: buyer.ID, Quantity: quantity})
		if err != nil {
			t.Fatalf("buy failed: %v", err)
		}
		return record
	}
	buy(fx.voucherA.ID, 3)
	redeemed := buy(fx.voucherB.ID, 2)
	buy(fx.voucherB.ID, 1)
	if _, err := env.redemption.Redeem(ctx, redeemed.ID, "operator"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	// 窗口之外的历史购买
	old := time.Now().UTC().AddDate(0, 0, -10)
	record := &models.PurchaseRecord{
		Code:        fmt.Sprintf("old-%d", time.Now().UnixNano()),
		VoucherID:   fx.voucherA.ID,
		SenderID:    buyer.ID,
		Quantity:    4,
		UnitPrice:   models.MustMoney("1"),
		TotalAmount: models.MustMoney("4"),
		UsageStatus: constants.UsageStatusUnused,
		CreatedAt:   old,
		UpdatedAt:   old,
	}
	if err := env.db.Create(record).Error; err != nil {
		t.Fatalf("create old purchase failed: %v", err)
	}
	return fx
}

func leaderboardByBrand(items []BrandLeaderboardItem) map[uint]BrandLeaderboardItem {
	result := make(map[uint]BrandLeaderboardItem, len(items))
	for _, item := range items {
		result[item.BrandID] = item
	}
	return result
}

func TestBrandLeaderboardTotalsAndOrdering(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	fx := seedStatisticsFixture(t, env)

	board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if board.Metric != constants.LeaderboardMetricSold || board.Limit != 10 || len(board.Items) != 2 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
	if board.Items[0].BrandID != fx.brandA.ID || board.Items[0].Sold != 7 {
		t.Fatalf("brand A should lead with 7 sold: %+v", board.Items)
	}
	byBrand := leaderboardByBrand(board.Items)
	b := byBrand[fx.brandB.ID]
	if b.Sold != 3 || b.Redeemed != 2 || b.Remaining != 1 || b.RedemptionRate != 0.6667 {
		t.Fatalf("unexpected brand B totals: %+v", b)
	}
	if board.StaleAfter.Sub(board.GeneratedAt) != 45*time.Second {
		t.Fatalf("stale_after should be generated_at + ttl: %v %v", board.GeneratedAt, board.StaleAfter)
	}

	byRedeemed, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Metric: "redeemed", Limit: 1, ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard by redeemed failed: %v", err)
	}
	if len(byRedeemed.Items) != 1 || byRedeemed.Items[0].BrandID != fx.brandB.ID {
		t.Fatalf("brand B should lead by redeemed: %+v", byRedeemed.Items)
	}

	windowed, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7, ForceRefresh: true})
	if err != nil {
		t.Fatalf("windowed leaderboard failed: %v", err)
	}
	win := leaderboardByBrand(windowed.Items)
	if win[fx.brandA.ID].Sold != 3 || win[fx.brandB.ID].Sold != 3 {
		t.Fatalf("windowed sold mismatch: %+v", windowed.Items)
	}
	// 同值按品牌ID升序
	if windowed.Items[0].BrandID != fx.brandA.ID {
		t.Fatalf("ties should break by brand id: %+v", windowed.Items)
	}

	if _, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Metric: "revenue"}); !errors.Is(err, ErrLeaderboardMetricInvalid) {
		t.Fatalf("unknown metric should be invalid input, got %v", err)
	}
	if _, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 91}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("days over max should be invalid input, got %v", err)
	}
}

func TestBrandLeaderboardExcludesInactiveBrand(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	fx := seedStatisticsFixture(t, env)
	if err := env.db.Model(fx.brandB).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate brand failed: %v", err)
	}

	board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(board.Items) != 1 || board.Items[0].BrandID != fx.brandA.ID {
		t.Fatalf("inactive brand should be excluded: %+v", board.Items)
	}
	all, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{IncludeInactive: true, ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("include inactive should list both brands: %+v", all.Items)
	}
}

func TestUsageTrendMatchesWindowedLeaderboard(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	seedStatisticsFixture(t, env)

	trend, err := env.statistics.UsageTrend(ctx, TrendInput{Days: 7, ForceRefresh: true})
	if err != nil {
		t.Fatalf("trend failed: %v", err)
	}
	if len(trend.Points) != 7 {
		t.Fatalf("trend should have 7 zero-filled points, got %d", len(trend.Points))
	}
	today := time.Now().UTC().Format("2006-01-02")
	last := trend.Points[len(trend.Points)-1]
	if last.Date != today || trend.To != today {
		t.Fatalf("trend should end today: %+v", last)
	}
	if last.Sold != 6 || last.Redeemed != 2 {
		t.Fatalf("today's point mismatch: %+v", last)
	}
	var sold, redeemed int64
	for _, point := range trend.Points {
		sold += point.Sold
		redeemed += point.Redeemed
	}
	if sold != trend.TotalSold || redeemed != trend.TotalRedeemed {
		t.Fatalf("totals mismatch: %d/%d vs %d/%d", sold, redeemed, trend.TotalSold, trend.TotalRedeemed)
	}

	board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7, ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	var boardSold, boardRedeemed int64
	for _, item := range board.Items {
		boardSold += item.Sold
		boardRedeemed += item.Redeemed
	}
	if boardSold != sold || boardRedeemed != redeemed {
		t.Fatalf("trend %d/%d should equal leaderboard %d/%d", sold, redeemed, boardSold, boardRedeemed)
	}
}

func TestUsageTrendNetsUndoRedeem(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	record := setupRedeemablePurchase(t, env, 2)
	if _, err := env.redemption.Redeem(ctx, record.ID, "op"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if _, err := env.redemption.UndoRedeem(ctx, record.ID, "op"); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	trend, err := env.statistics.UsageTrend(ctx, TrendInput{Days: 1, ForceRefresh: true})
	if err != nil {
		t.Fatalf("trend failed: %v", err)
	}
	if len(trend.Points) != 1 || trend.Points[0].Redeemed != 0 || trend.Points[0].Sold != 2 {
		t.Fatalf("unexpected trend: %+v", trend.Points)
	}
}

func TestStatisticsCacheDisclosesStaleness(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	seedStatisticsFixture(t, env)

	first, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if first.Cached {
		t.Fatalf("first read should be computed")
	}
	second, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if !second.Cached || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("second read should come from cache: %+v", second.ReportMeta)
	}
	forced, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if forced.Cached {
		t.Fatalf("force refresh should bypass cache")
	}

	env.statistics.LedgerChanged(ctx, "test")
	if env.cache.size() != 0 {
		t.Fatalf("ledger change should invalidate statistics cache, %d entries left", env.cache.size())
	}

	if err := env.statistics.RefreshCache(ctx); err != nil {
		t.Fatalf("refresh cache failed: %v", err)
	}
	if env.cache.size() != 5 {
		t.Fatalf("refresh should warm 4 leaderboards and 1 trend, got %d", env.cache.size())
	}
}

func TestExpiringSoonAndLowStock(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := env.createVoucher(t, &models.Voucher{Title: "soon", Amount: models.MustMoney("5"), Quantity: 2, ValidMonths: 1})
	expired := env.createVoucher(t, &models.Voucher{Title: "expired", Amount: models.MustMoney("5"), Quantity: 20, ValidMonths: 1})
	env.createVoucher(t, &models.Voucher{Title: "evergreen", Amount: models.MustMoney("5"), Unlimited: true})
	if err := env.db.Model(soon).UpdateColumn("created_at", now.AddDate(0, -1, 10)).Error; err != nil {
		t.Fatalf("backdate voucher failed: %v", err)
	}
	if err := env.db.Model(expired).UpdateColumn("created_at", now.AddDate(0, -2, 0)).Error; err != nil {
		t.Fatalf("backdate voucher failed: %v", err)
	}

	expiring, err := env.statistics.ExpiringSoon(ctx, AlertInput{Days: 30})
	if err != nil {
		t.Fatalf("expiring soon failed: %v", err)
	}
	if len(expiring) != 1 || expiring[0].VoucherID != soon.ID || expiring[0].DaysLeft > 30 {
		t.Fatalf("unexpected expiring list: %+v", expiring)
	}
	if short, err := env.statistics.ExpiringSoon(ctx, AlertInput{Days: 1}); err != nil || len(short) != 0 {
		t.Fatalf("1-day window should be empty: %+v %v", short, err)
	}

	lowStock, err := env.statistics.LowStock(ctx, AlertInput{})
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(lowStock) != 1 || lowStock[0].VoucherID != soon.ID || lowStock[0].Quantity != 2 {
		t.Fatalf("unexpected low stock list: %+v", lowStock)
	}
	threshold := 50
	all, err := env.statistics.LowStock(ctx, AlertInput{Threshold: &threshold})
	if err != nil || len(all) != 2 || all[0].Quantity > all[1].Quantity {
		t.Fatalf("threshold 50 should list both limited vouchers ascending: %+v %v", all, err)
	}
	negative := -1
	if _, err := env.statistics.LowStock(ctx, AlertInput{Threshold: &negative}); !errors.Is(err, ErrThresholdInvalid) {
		t.Fatalf("negative threshold should be invalid, got %v", err)
	}

	scan, err := env.statistics.ScanAlerts(ctx, 0, 0)
	if err != nil {
		t.Fatalf("scan alerts failed: %v", err)
	}
	if len(scan.LowStock) != 1 || len(scan.Expiring) != 1 {
		t.Fatalf("unexpected scan result: %+v", scan)
	}
}

func TestVoucherUsageReport(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	fx := seedStatisticsFixture(t, env)

	page, err := env.statistics.VoucherUsage(ctx, VoucherUsageInput{SortBy: "sold", SortOrder: "desc"})
	if err != nil {
		t.Fatalf("voucher usage failed: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.PageSize != 20 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].VoucherID != fx.voucherA.ID || page.Items[0].Sold != 7 {
		t.Fatalf("voucher A should lead by sold: %+v", page.Items)
	}
	if page.Items[1].Redeemed != 2 || page.Items[1].UsageRate != 0.6667 {
		t.Fatalf("unexpected voucher B usage: %+v", page.Items[1])
	}

	filtered, err := env.statistics.VoucherUsage(ctx, VoucherUsageInput{BrandID: fx.brandB.ID})
	if err != nil || filtered.Total != 1 || filtered.Items[0].VoucherID != fx.voucherB.ID {
		t.Fatalf("brand filter failed: %+v %v", filtered, err)
	}
}

func TestTrailingWindowUsesUTCDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	start, end := trailingWindow(now, 3)
	if start.Format(time.RFC3339) != "2026-03-08T00:00:00Z" || end.Format(time.RFC3339) != "2026-03-11T00:00:00Z" {
		t.Fatalf("unexpected window: %s - %s", start, end)
	}
	if ratio(1, 3) != 0.3333 || ratio(5, 0) != 0 {
		t.Fatalf("ratio rounding mismatch")
	}
}

func sumLeaderboard(items []BrandLeaderboardItem) (sold, redeemed int64) {
	for _, item := range items {
		sold += item.Sold
		redeemed += item.Redeemed
	}
	return sold, redeemed
}

func TestUsageTrendMatchesLeaderboardWithInactiveBrand(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	fx := seedStatisticsFixture(t, env)
	if err := env.db.Model(fx.brandB).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate brand failed: %v", err)
	}

	for _, includeInactive := range []bool{false, true} {
		trend, err := env.statistics.UsageTrend(ctx, TrendInput{Days: 7, IncludeInactive: includeInactive, ForceRefresh: true})
		if err != nil {
			t.Fatalf("trend failed: %v", err)
		}
		board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7, IncludeInactive: includeInactive, ForceRefresh: true})
		if err != nil {
			t.Fatalf("leaderboard failed: %v", err)
		}
		sold, redeemed := sumLeaderboard(board.Items)
		if trend.TotalSold != sold || trend.TotalRedeemed != redeemed {
			t.Fatalf("include_inactive=%t: trend %d/%d should equal leaderboard %d/%d",
				includeInactive, trend.TotalSold, trend.TotalRedeemed, sold, redeemed)
		}
	}
}

func TestStatisticsIncludeInactiveCountsSoftDeletedVoucher(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	brand := env.createBrand(t, "sunset")
	voucher := env.createVoucher(t, &models.Voucher{Amount: models.MustMoney("5"), Quantity: 5, BrandID: &brand.ID})
	buyer := env.createUser(t, "100")
	if _, err := env.purchase.Buy(ctx, BuyInput{VoucherID: voucher.ID, BuyerID: buyer.ID, Quantity: 2}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if err := env.db.Delete(&models.Voucher{}, voucher.ID).Error; err != nil {
		t.Fatalf("soft delete voucher failed: %v", err)
	}

	hidden, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(hidden.Items) != 0 {
		t.Fatalf("soft-deleted voucher should be excluded by default: %+v", hidden.Items)
	}

	board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{IncludeInactive: true, ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(board.Items) != 1 || board.Items[0].BrandID != brand.ID || board.Items[0].Sold != 2 || board.Items[0].Remaining != 2 {
		t.Fatalf("soft-deleted voucher should count with include_inactive: %+v", board.Items)
	}

	usage, err := env.statistics.VoucherUsage(ctx, VoucherUsageInput{IncludeInactive: true})
	if err != nil {
		t.Fatalf("voucher usage failed: %v", err)
	}
	if usage.Total != 1 || usage.Items[0].VoucherID != voucher.ID || usage.Items[0].Sold != 2 {
		t.Fatalf("voucher usage should include soft-deleted voucher: %+v", usage)
	}

	threshold := 5
	low, err := env.statistics.LowStock(ctx, AlertInput{Threshold: &threshold, IncludeInactive: true})
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 1 || low[0].VoucherID != voucher.ID || low[0].Quantity != 3 {
		t.Fatalf("low stock should include soft-deleted voucher: %+v", low)
	}
	if hiddenLow, err := env.statistics.LowStock(ctx, AlertInput{Threshold: &threshold}); err != nil || len(hiddenLow) != 0 {
		t.Fatalf("low stock should hide soft-deleted voucher by default: %+v %v", hiddenLow, err)
	}
}

func TestWindowedLeaderboardIgnoresUndoOfEarlierRedeem(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	brand := env.createBrand(t, "backdated")
	voucher := env.createVoucher(t, &models.Voucher{Amount: models.MustMoney("5"), Quantity: 10, BrandID: &brand.ID})
	buyer := env.createUser(t, "100")
	record, err := env.purchase.Buy(ctx, BuyInput{VoucherID: voucher.ID, BuyerID: buyer.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := env.redemption.Redeem(ctx, record.ID, "op"); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	past := time.Now().UTC().AddDate(0, 0, -10)
	if err := env.db.Model(&models.PurchaseRecord{}).Where("id = ?", record.ID).UpdateColumn("created_at", past).Error; err != nil {
		t.Fatalf("backdate purchase failed: %v", err)
	}
	if err := env.db.Model(&models.RedeemAuditEvent{}).Where("purchase_record_id = ?", record.ID).UpdateColumn("performed_at", past).Error; err != nil {
		t.Fatalf("backdate audit failed: %v", err)
	}
	if _, err := env.redemption.UndoRedeem(ctx, record.ID, "op"); err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	board, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 1, ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	for _, item := range board.Items {
		if item.Redeemed < 0 || item.Remaining > item.Sold {
			t.Fatalf("windowed leaderboard went negative: %+v", item)
		}
	}
	trend, err := env.statistics.UsageTrend(ctx, TrendInput{Days: 1, ForceRefresh: true})
	if err != nil {
		t.Fatalf("trend failed: %v", err)
	}
	if trend.TotalRedeemed != 0 {
		t.Fatalf("trend should ignore undo of a redeem outside the window, got %d", trend.TotalRedeemed)
	}

	// 全量口径仍以券上的核销计数为准
	full, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{ForceRefresh: true})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(full.Items) != 1 || full.Items[0].Sold != 2 || full.Items[0].Redeemed != 0 {
		t.Fatalf("unexpected full leaderboard: %+v", full.Items)
	}
}

func TestWindowedLeaderboardCacheRollsOverAtUTCMidnight(t *testing.T) {
	env := setupLedgerTest(t)
	ctx := context.Background()
	seedStatisticsFixture(t, env)

	env.statistics.now = func() time.Time { return time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC) }
	first, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if first.To != "2026-03-01" {
		t.Fatalf("window should end on 2026-03-01, got %s", first.To)
	}
	cached, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7})
	if err != nil || !cached.Cached {
		t.Fatalf("same-day read should hit cache: %+v %v", cached, err)
	}

	env.statistics.now = func() time.Time { return time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC) }
	next, err := env.statistics.BrandLeaderboard(ctx, LeaderboardInput{Days: 7})
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if next.Cached || next.To != "2026-03-02" {
		t.Fatalf("next day should recompute a fresh window: cached=%t to=%s", next.Cached, next.To)
	}
}

func TestLoadReportSurvivesLeaderCancel(t *testing.T) {
	env := setupLedgerTest(t)
	const key = "statistics:test:collapse"

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	compute := func(ctx context.Context, now time.Time) (*UsageTrendResponse, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &UsageTrendResponse{Days: 3}, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := loadReport(leaderCtx, env.statistics, "trend", key, true, compute)
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		report *UsageTrendResponse
		err    error
	}
	waiter := make(chan outcome, 1)
	go func() {
		report, err := loadReport(context.Background(), env.statistics, "trend", key, true, compute)
		waiter <- outcome{report: report, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	if err := <-leaderErr; err == nil {
		t.Fatalf("canceled caller should stop waiting with an error")
	}
	close(release)

	got := <-waiter
	if got.err != nil || got.report == nil || got.report.Days != 3 {
		t.Fatalf("waiter should receive the shared result, got %+v %v", got.report, got.err)
	}
	if env.cache.size() != 1 {
		t.Fatalf("shared result should be cached once computed, got %d entries", env.cache.size())
	}
}
