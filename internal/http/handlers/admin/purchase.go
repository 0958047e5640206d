package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminPurchases 分页查询购买记录
func (h *Handler) GetAdminPurchases(c *gin.Context) {
	var query struct {
		Page        int    `form:"page"`
		PageSize    int    `form:"page_size"`
		SenderID    uint   `form:"sender_id"`
		VoucherID   uint   `form:"voucher_id"`
		UsageStatus string `form:"usage_status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	page, pageSize := handlershared.NormalizePagination(query.Page, query.PageSize)
	records, total, err := h.PurchaseService.ListPurchases(c.Request.Context(), repository.PurchaseListFilter{
		Page:        page,
		PageSize:    pageSize,
		SenderID:    query.SenderID,
		VoucherID:   query.VoucherID,
		UsageStatus: strings.TrimSpace(query.UsageStatus),
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.SuccessWithPage(c, records, response.BuildPagination(page, pageSize, total))
}

// GetAdminPurchase 查看任意购买记录
func (h *Handler) GetAdminPurchase(c *gin.Context) {
	purchaseID, ok := handlershared.ParseUintParam(c.Param("id"))
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid purchase id", nil)
		return
	}
	record, err := h.PurchaseService.GetPurchase(c.Request.Context(), purchaseID, 0)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, record)
}
