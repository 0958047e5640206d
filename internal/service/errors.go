package service

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode 账本错误分类
type ErrorCode string

const (
	CodeNotFound            ErrorCode = "not_found"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeInsufficientStock   ErrorCode = "insufficient_stock"
	CodeInsufficientBalance ErrorCode = "insufficient_balance"
	CodeInvalidState        ErrorCode = "invalid_state"
	CodeConflict            ErrorCode = "conflict"
	CodePersistence         ErrorCode = "persistence"
)

// LedgerError 带稳定错误码与原因的业务错误
type LedgerError struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(err, ErrNotFound) 对任何 not_found 错误成立
func (e *LedgerError) Is(target error) bool {
	var other *LedgerError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && (other.Reason == "" || other.Reason == e.Reason)
}

// 分类哨兵错误，只用于 errors.Is 判断
var (
	ErrNotFound            = &LedgerError{Code: CodeNotFound, Message: "resource not found"}
	ErrInvalidInput        = &LedgerError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInsufficientStock   = &LedgerError{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrInsufficientBalance = &LedgerError{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrInvalidState        = &LedgerError{Code: CodeInvalidState, Message: "invalid state"}
	ErrConflict            = &LedgerError{Code: CodeConflict, Message: "concurrent modification"}
	ErrPersistence         = &LedgerError{Code: CodePersistence, Message: "storage failure"}
)

// 具体原因
var (
	ErrVoucherNotFound          = newLedgerError(CodeNotFound, "voucher_not_found", "voucher not found")
	ErrPurchaseNotFound         = newLedgerError(CodeNotFound, "purchase_not_found", "purchase record not found")
	ErrUserNotFound             = newLedgerError(CodeNotFound, "user_not_found", "user not found")
	ErrBrandNotFound            = newLedgerError(CodeNotFound, "brand_not_found", "brand not found")
	ErrQuantityNotPositive      = newLedgerError(CodeInvalidInput, "quantity_not_positive", "quantity must be greater than zero")
	ErrVoucherIDRequired        = newLedgerError(CodeInvalidInput, "voucher_id_required", "voucher id is required")
	ErrBuyerIDRequired          = newLedgerError(CodeInvalidInput, "buyer_id_required", "buyer id is required")
	ErrPurchaseIDRequired       = newLedgerError(CodeInvalidInput, "purchase_id_required", "purchase id is required")
	ErrPerformerRequired        = newLedgerError(CodeInvalidInput, "performed_by_required", "performer is required")
	ErrRedeemCodeRequired       = newLedgerError(CodeInvalidInput, "code_required", "redemption code is required")
	ErrPercentagePriceMissing   = newLedgerError(CodeInvalidInput, "percentage_price_missing", "percentage voucher has no sale price")
	ErrAmountNotPositive        = newLedgerError(CodeInvalidInput, "amount_not_positive", "amount must be greater than zero")
	ErrStatisticsRangeInvalid   = newLedgerError(CodeInvalidInput, "statistics_range_invalid", "statistics range is invalid")
	ErrLeaderboardMetricInvalid = newLedgerError(CodeInvalidInput, "metric_invalid", "unsupported leaderboard metric")
	ErrThresholdInvalid         = newLedgerError(CodeInvalidInput, "threshold_invalid", "threshold must not be negative")
	ErrUserDisabled             = newLedgerError(CodeInvalidState, "user_disabled", "user is disabled")
	ErrPurchaseNotRedeemed      = newLedgerError(CodeInvalidState, "purchase_not_redeemed", "purchase record is not redeemed")
	ErrStockExhausted           = newLedgerError(CodeInsufficientStock, "insufficient_stock", "insufficient stock")
	ErrWalletInsufficientFunds  = newLedgerError(CodeInsufficientBalance, "insufficient_balance", "insufficient balance")
	ErrLedgerRetryExhausted     = newLedgerError(CodeConflict, "retry_exhausted", "concurrent modification retries exhausted")
	ErrRedeemedCounterUnderflow = newLedgerError(CodeConflict, "redeemed_counter_underflow", "voucher redeemed counter would go negative")
)

func newLedgerError(code ErrorCode, reason, message string) *LedgerError {
	return &LedgerError{Code: code, Reason: reason, Message: message}
}

// errConcurrentModification 内部信号：条件更新未命中，需要重试
var errConcurrentModification = errors.New("concurrent modification")

// wrapPersistence 将存储层错误统一包装为 persistence，已分类的错误与上下文取消原样返回
func wrapPersistence(err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}
	if errors.Is(err, errConcurrentModification) {
		return err
	}
	reason := "storage_failure"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = "operation_aborted"
	}
	return &LedgerError{Code: CodePersistence, Reason: reason, Message: "storage failure", Err: err}
}

// ErrorReason 返回错误的稳定原因码，非账本错误返回空
func ErrorReason(err error) string {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		if ledgerErr.Reason != "" {
			return ledgerErr.Reason
		}
		return string(ledgerErr.Code)
	}
	return ""
}

// ErrorCodeOf 返回错误分类，非账本错误视为 persistence
func ErrorCodeOf(err error) ErrorCode {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Code
	}
	return CodePersistence
}
