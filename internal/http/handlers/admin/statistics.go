package admin

import (
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// LeaderboardQuery 品牌排行榜查询参数
type LeaderboardQuery struct {
	Metric          string `form:"metric"`
	Limit           int    `form:"limit"`
	Days            int    `form:"days"`
	IncludeInactive bool   `form:"include_inactive"`
	Refresh         bool   `form:"refresh"`
}

// TrendQuery 使用趋势查询参数
type TrendQuery struct {
	Days            int  `form:"days"`
	BrandID         uint `form:"brand_id"`
	IncludeInactive bool `form:"include_inactive"`
	Refresh         bool `form:"refresh"`
}

// AlertQuery 告警列表查询参数
type AlertQuery struct {
	Days            int  `form:"days"`
	Threshold       *int `form:"threshold"`
	IncludeInactive bool `form:"include_inactive"`
}

// VoucherUsageQuery 单券使用统计查询参数
type VoucherUsageQuery struct {
	BrandID         uint   `form:"brand_id"`
	Search          string `form:"search"`
	SortBy          string `form:"sort_by"`
	SortOrder       string `form:"sort_order"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
	IncludeInactive bool   `form:"include_inactive"`
}

// GetBrandLeaderboard 品牌排行榜
func (h *Handler) GetBrandLeaderboard(c *gin.Context) {
	var query LeaderboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	result, err := h.StatisticsService.BrandLeaderboard(c.Request.Context(), service.LeaderboardInput{
		Metric:          query.Metric,
		Limit:           query.Limit,
		Days:            query.Days,
		IncludeInactive: query.IncludeInactive,
		ForceRefresh:    query.Refresh,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, result)
}

// GetUsageTrend 售出与核销日趋势
func (h *Handler) GetUsageTrend(c *gin.Context) {
	var query TrendQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	result, err := h.StatisticsService.UsageTrend(c.Request.Context(), service.TrendInput{
		Days:            query.Days,
		BrandID:         query.BrandID,
		IncludeInactive: query.IncludeInactive,
		ForceRefresh:    query.Refresh,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, result)
}

// GetExpiringVouchers 即将到期的券
func (h *Handler) GetExpiringVouchers(c *gin.Context) {
	var query AlertQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	items, err := h.StatisticsService.ExpiringSoon(c.Request.Context(), service.AlertInput{
		Days:            query.Days,
		IncludeInactive: query.IncludeInactive,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, items)
}

// GetLowStockVouchers 低库存的券
func (h *Handler) GetLowStockVouchers(c *gin.Context) {
	var query AlertQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	items, err := h.StatisticsService.LowStock(c.Request.Context(), service.AlertInput{
		Threshold:       query.Threshold,
		IncludeInactive: query.IncludeInactive,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, items)
}

// GetVoucherUsage 单券使用统计
func (h *Handler) GetVoucherUsage(c *gin.Context) {
	var query VoucherUsageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	result, err := h.StatisticsService.VoucherUsage(c.Request.Context(), service.VoucherUsageInput{
		BrandID:         query.BrandID,
		Search:          query.Search,
		SortBy:          query.SortBy,
		SortOrder:       query.SortOrder,
		Page:            query.Page,
		PageSize:        query.PageSize,
		IncludeInactive: query.IncludeInactive,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.SuccessWithPage(c, result.Items, response.BuildPagination(result.Page, result.PageSize, result.Total))
}

// RefreshStatistics 立即重算统计缓存
func (h *Handler) RefreshStatistics(c *gin.Context) {
	if err := h.StatisticsService.RefreshCache(c.Request.Context()); err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, gin.H{"refreshed": true})
}
