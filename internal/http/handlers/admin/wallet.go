package admin

import (
	handlershared "github.com/dujiao-next/voucher-ledger/internal/http/handlers/shared"
	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// TopUpRequest 余额充值请求
type TopUpRequest struct {
	UserID    uint         `json:"user_id" binding:"required"`
	Amount    models.Money `json:"amount"`
	Reference string       `json:"reference"`
	Remark    string       `json:"remark"`
}

// TopUpResponse 余额充值结果
type TopUpResponse struct {
	Account     *models.WalletAccount     `json:"account"`
	Transaction *models.WalletTransaction `json:"transaction"`
}

// TopUpWallet 为用户钱包充值，reference 相同的重复提交返回首次结果
func (h *Handler) TopUpWallet(c *gin.Context) {
	if _, ok := getAdminID(c); !ok {
		return
	}
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, handlershared.BindErrorMessage(err), nil)
		return
	}
	account, txn, err := h.WalletService.TopUp(c.Request.Context(), service.TopUpInput{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: req.Reference,
		Remark:    req.Remark,
	})
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	response.Success(c, TopUpResponse{Account: account, Transaction: txn})
}
