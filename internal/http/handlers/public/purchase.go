package public

import (
	"strings"

	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/repository"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// RecipientRequest 收券人信息
type RecipientRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// CreatePurchaseRequest 购买请求
type CreatePurchaseRequest struct {
	VoucherID uint             `json:"voucher_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required"`
	Recipient RecipientRequest `json:"recipient"`
}

// CreatePurchase 使用钱包余额购买代金券
func (h *Handler) CreatePurchase(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, handlershared.BindErrorMessage(err), nil)
		return
	}

	record, err := h.PurchaseService.Buy(c.Request.Context(), service.BuyInput{
		VoucherID: req.VoucherID,
		BuyerID:   userID,
		Quantity:  req.Quantity,
		Recipient: service.Recipient{
			Name:    req.Recipient.Name,
			Email:   req.Recipient.Email,
			Phone:   req.Recipient.Phone,
			Message: req.Recipient.Message,
		},
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, record)
}

// GetPurchase 查看本人的购买记录
func (h *Handler) GetPurchase(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	purchaseID, ok := handlershared.ParseUintParam(c.Param("id"))
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid purchase id", nil)
		return
	}
	record, err := h.PurchaseService.GetPurchase(c.Request.Context(), purchaseID, userID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, record)
}

// ListPurchases 分页查询本人的购买记录
func (h *Handler) ListPurchases(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var query struct {
		Page        int    `form:"page"`
		PageSize    int    `form:"page_size"`
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
		SenderID:    userID,
		UsageStatus: strings.TrimSpace(query.UsageStatus),
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.SuccessWithPage(c, records, response.BuildPagination(page, pageSize, total))
}
