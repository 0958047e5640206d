package shared

import (
	"errors"

	"github.com/dujiao-next/voucher-ledger/internal/http/response"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get(response.RequestIDKey); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// mappedLedgerError 账本错误分类到接口状态码的映射
type mappedLedgerError struct {
	target error
	code   int
}

var ledgerErrorRules = []mappedLedgerError{
	{target: service.ErrNotFound, code: response.CodeNotFound},
	{target: service.ErrInvalidInput, code: response.CodeBadRequest},
	{target: service.ErrInsufficientStock, code: response.CodeUnprocessableEntity},
	{target: service.ErrInsufficientBalance, code: response.CodeUnprocessableEntity},
	{target: service.ErrInvalidState, code: response.CodeConflict},
	{target: service.ErrConflict, code: response.CodeConflict},
}

// LedgerErrorCode 返回账本错误对应的接口状态码，未分类错误视为内部错误。
func LedgerErrorCode(err error) int {
	for _, rule := range ledgerErrorRules {
		if errors.Is(err, rule.target) {
			return rule.code
		}
	}
	return response.CodeInternal
}

// RespondLedgerError 按账本错误分类返回响应，内部错误只记录日志不透出细节。
func RespondLedgerError(c *gin.Context, err error) {
	code := LedgerErrorCode(err)
	reason := service.ErrorReason(err)
	if code == response.CodeInternal {
		RequestLog(c).Errorw("handler_ledger_error",
			"reason", reason,
			"error", err,
		)
		if reason == "" {
			reason = string(service.CodePersistence)
		}
		response.ErrorWithReason(c, code, reason, "internal error")
		return
	}
	msg := "request failed"
	var ledgerErr *service.LedgerError
	if errors.As(err, &ledgerErr) && ledgerErr.Message != "" {
		msg = ledgerErr.Message
	}
	RequestLog(c).Debugw("handler_ledger_rejected",
		"code", code,
		"reason", reason,
	)
	response.ErrorWithReason(c, code, reason, msg)
}
