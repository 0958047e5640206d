package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"gorm.io/gorm"
)

const (
	operationRedeem     = "redeem"
	operationUndoRedeem = "undo_redeem"
)

// RedemptionService 核销状态机
type RedemptionService struct {
	purchaseRepo repository.PurchaseRepository
	voucherRepo  repository.VoucherRepository
	auditRepo    repository.RedeemAuditRepository
	runner       *LedgerRunner
	notifier     LedgerChangeNotifier
	metrics      *metrics.LedgerMetrics
}

// RedemptionResult 核销结果，Changed 为 false 表示记录已处于目标状态
type RedemptionResult struct {
	Record  *models.PurchaseRecord   `json:"record"`
	Changed bool                     `json:"changed"`
	Event   *models.RedeemAuditEvent `json:"event,omitempty"`
}

// NewRedemptionService 创建核销服务
func NewRedemptionService(
	purchaseRepo repository.PurchaseRepository,
	voucherRepo repository.VoucherRepository,
	auditRepo repository.RedeemAuditRepository,
	runner *LedgerRunner,
	notifier LedgerChangeNotifier,
	m *metrics.LedgerMetrics,
) *RedemptionService {
	return &RedemptionService{
		purchaseRepo: purchaseRepo,
		voucherRepo:  voucherRepo,
		auditRepo:    auditRepo,
		runner:       runner,
		notifier:     notifier,
		metrics:      m,
	}
}

// Redeem 将购买记录标记为已使用，已使用时幂等返回
func (s *RedemptionService) Redeem(ctx context.Context, purchaseID uint, performedBy string) (result *RedemptionResult, err error) {
	startedAt := time.Now()
	defer func() { observe(s.metrics, operationRedeem, startedAt, err) }()

	performedBy = strings.TrimSpace(performedBy)
	if purchaseID == 0 {
		return nil, ErrPurchaseIDRequired
	}
	if performedBy == "" {
		return nil, ErrPerformerRequired
	}
	return s.transition(ctx, purchaseID, performedBy, constants.RedeemActionRedeem)
}

// UndoRedeem 撤销核销，记录未使用时返回 ErrPurchaseNotRedeemed
func (s *RedemptionService) UndoRedeem(ctx context.Context, purchaseID uint, performedBy string) (result *RedemptionResult, err error) {
	startedAt := time.Now()
	defer func() { observe(s.metrics, operationUndoRedeem, startedAt, err) }()

	performedBy = strings.TrimSpace(performedBy)
	if purchaseID == 0 {
		return nil, ErrPurchaseIDRequired
	}
	if performedBy == "" {
		return nil, ErrPerformerRequired
	}
	return s.transition(ctx, purchaseID, performedBy, constants.RedeemActionUndoRedeem)
}

// RedeemByCode 按核销码核销
func (s *RedemptionService) RedeemByCode(ctx context.Context, code, performedBy string) (*RedemptionResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrRedeemCodeRequired
	}
	record, err := s.purchaseRepo.WithContext(ctx).GetByCode(code)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if record == nil {
		return nil, ErrPurchaseNotFound
	}
	return s.Redeem(ctx, record.ID, performedBy)
}

// ListAudit 按时间顺序返回购买记录的核销审计
func (s *RedemptionService) ListAudit(ctx context.Context, purchaseID uint) ([]models.RedeemAuditEvent, error) {
	if purchaseID == 0 {
		return nil, ErrPurchaseIDRequired
	}
	record, err := s.purchaseRepo.WithContext(ctx).GetByID(purchaseID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if record == nil {
		return nil, ErrPurchaseNotFound
	}
	events, err := s.auditRepo.WithContext(ctx).ListByPurchase(purchaseID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return events, nil
}

func (s *RedemptionService) transition(ctx context.Context, purchaseID uint, performedBy, action string) (*RedemptionResult, error) {
	from, to, delta := constants.UsageStatusUnused, constants.UsageStatusUsed, 1
	if action == constants.RedeemActionUndoRedeem {
		from, to, delta = constants.UsageStatusUsed, constants.UsageStatusUnused, -1
	}

	var result *RedemptionResult
	err := s.runner.Run(ctx, action, func(tx *gorm.DB) error {
		purchaseRepo := s.purchaseRepo.WithTx(tx)
		record, err := purchaseRepo.GetByIDForUpdate(purchaseID)
		if err != nil {
			return err
		}
		if record == nil {
			return ErrPurchaseNotFound
		}
		if record.UsageStatus != from {
			if action == constants.RedeemActionRedeem {
				result = &RedemptionResult{Record: record, Changed: false}
				return nil
			}
			return ErrPurchaseNotRedeemed
		}

		now := time.Now().UTC()
		var usedAt *time.Time
		if to == constants.UsageStatusUsed {
			usedAt = &now
		}
		rows, err := purchaseRepo.TransitionUsage(record.ID, from, to, usedAt)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errConcurrentModification
		}

		rows, err = s.voucherRepo.WithTx(tx).AdjustRedeemed(record.VoucherID, delta*record.Quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			if delta < 0 {
				return ErrRedeemedCounterUnderflow
			}
			return ErrVoucherNotFound
		}

		event := &models.RedeemAuditEvent{
			PurchaseRecordID: record.ID,
			VoucherID:        record.VoucherID,
			PerformedBy:      performedBy,
			Action:           action,
			PerformedAt:      now,
			Quantity:         record.Quantity,
			PreviousStatus:   from,
			NewStatus:        to,
		}
		if err := s.auditRepo.WithTx(tx).Create(event); err != nil {
			return err
		}

		record.UsageStatus = to
		record.UsedAt = usedAt
		result = &RedemptionResult{Record: record, Changed: true, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		logger.Infow("purchase_usage_changed",
			"purchase_id", purchaseID,
			"action", action,
			"performed_by", performedBy,
			"status", result.Record.UsageStatus,
		)
		if s.notifier != nil {
			s.notifier.LedgerChanged(context.WithoutCancel(ctx), action)
		}
	}
	return result, nil
}
