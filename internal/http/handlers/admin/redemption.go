package admin

import (
	"context"

	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// RedeemByCodeRequest 按核销码核销请求
type RedeemByCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedemptionResponse 核销结果，changed 为 false 表示幂等命中
type RedemptionResponse struct {
	Purchase interface{} `json:"purchase"`
	Changed  bool        `json:"changed"`
	Event    interface{} `json:"event,omitempty"`
}

type transitionFunc func(ctx context.Context, purchaseID uint, performedBy string) (*service.RedemptionResult, error)

func buildRedemptionResponse(result *service.RedemptionResult) RedemptionResponse {
	resp := RedemptionResponse{Purchase: result.Record, Changed: result.Changed}
	if result.Event != nil {
		resp.Event = result.Event
	}
	return resp
}

// RedeemPurchase 核销购买记录，已核销时幂等返回
func (h *Handler) RedeemPurchase(c *gin.Context) {
	h.applyTransition(c, h.RedemptionService.Redeem)
}

// UndoRedeemPurchase 撤销核销
func (h *Handler) UndoRedeemPurchase(c *gin.Context) {
	h.applyTransition(c, h.RedemptionService.UndoRedeem)
}

func (h *Handler) applyTransition(c *gin.Context, fn transitionFunc) {
	performer, ok := getPerformer(c)
	if !ok {
		return
	}
	purchaseID, ok := handlershared.ParseUintParam(c.Param("id"))
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid purchase id", nil)
		return
	}
	result, err := fn(c.Request.Context(), purchaseID, performer)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, buildRedemptionResponse(result))
}

// RedeemByCode 按核销码核销
func (h *Handler) RedeemByCode(c *gin.Context) {
	performer, ok := getPerformer(c)
	if !ok {
		return
	}
	var req RedeemByCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, handlershared.BindErrorMessage(err), nil)
		return
	}
	result, err := h.RedemptionService.RedeemByCode(c.Request.Context(), req.Code, performer)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, buildRedemptionResponse(result))
}

// GetPurchaseAudit 查询购买记录的核销审计
func (h *Handler) GetPurchaseAudit(c *gin.Context) {
	purchaseID, ok := handlershared.ParseUintParam(c.Param("id"))
	if !ok {
		respondError(c, response.CodeBadRequest, "invalid purchase id", nil)
		return
	}
	events, err := h.RedemptionService.ListAudit(c.Request.Context(), purchaseID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, events)
}
