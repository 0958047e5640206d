package public

import (
	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetMyWallet 获取本人钱包余额
func (h *Handler) GetMyWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	account, err := h.WalletService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, account)
}

// GetMyWalletTransactions 分页查询本人钱包流水
func (h *Handler) GetMyWalletTransactions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var query struct {
		Page     int    `form:"page"`
		PageSize int    `form:"page_size"`
		Type     string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "invalid query", nil)
		return
	}
	page, pageSize := handlershared.NormalizePagination(query.Page, query.PageSize)
	txns, total, err := h.WalletService.ListTransactions(c.Request.Context(), repository.WalletTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   userID,
		Type:     query.Type,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.SuccessWithPage(c, txns, response.BuildPagination(page, pageSize, total))
}
