package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/constants"
	"github.com/dujiao-next/voucher-ledger/internal/logger"
	"github.com/dujiao-next/voucher-ledger/internal/metrics"
	"github.com/dujiao-next/voucher-ledger/internal/models"
	"github.com/dujiao-next/voucher-ledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	operationBuy = "buy"
)

// PurchaseService 代金券购买服务
type PurchaseService struct {
	voucherRepo  repository.VoucherRepository
	purchaseRepo repository.PurchaseRepository
	userRepo     repository.UserRepository
	walletSvc    *WalletService
	runner       *LedgerRunner
	notifier     LedgerChangeNotifier
	metrics      *metrics.LedgerMetrics
}

// LedgerChangeNotifier 账本写入提交后的通知钩子（统计缓存失效与重算）
type LedgerChangeNotifier interface {
	LedgerChanged(ctx context.Context, source string)
}

// Recipient 收券人信息
type Recipient struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// BuyInput 购买输入
type BuyInput struct {
	VoucherID uint
	BuyerID   uint
	Quantity  int
	Recipient Recipient
}

// NewPurchaseService 创建购买服务
func NewPurchaseService(
	voucherRepo repository.VoucherRepository,
	purchaseRepo repository.PurchaseRepository,
	userRepo repository.UserRepository,
	walletSvc *WalletService,
	runner *LedgerRunner,
	notifier LedgerChangeNotifier,
	m *metrics.LedgerMetrics,
) *PurchaseService {
	return &PurchaseService{
		voucherRepo:  voucherRepo,
		purchaseRepo: purchaseRepo,
		userRepo:     userRepo,
		walletSvc:    walletSvc,
		runner:       runner,
		notifier:     notifier,
		metrics:      m,
	}
}

// Buy 购买代金券：校验库存与余额，扣款、扣库存、写购买记录在同一事务内完成
func (s *PurchaseService) Buy(ctx context.Context, input BuyInput) (record *models.PurchaseRecord, err error) {
	startedAt := time.Now()
	defer func() { observe(s.metrics, operationBuy, startedAt, err) }()

	if err := validateBuyInput(input); err != nil {
		return nil, err
	}
	recipient := normalizeRecipient(input.Recipient)

	err = s.runner.Run(ctx, operationBuy, func(tx *gorm.DB) error {
		buyer, err := s.userRepo.WithTx(tx).GetByID(input.BuyerID)
		if err != nil {
			return err
		}
		if buyer == nil {
			return ErrUserNotFound
		}
		if buyer.Status == constants.UserStatusDisabled {
			return ErrUserDisabled
		}

		voucherRepo := s.voucherRepo.WithTx(tx)
		voucher, err := voucherRepo.GetByIDForUpdate(input.VoucherID)
		if err != nil {
			return err
		}
		if voucher == nil || !voucher.IsActive {
			return ErrVoucherNotFound
		}
		if !voucher.Unlimited && input.Quantity > voucher.Quantity {
			return ErrStockExhausted
		}

		unitPrice, err := resolveUnitPrice(voucher)
		if err != nil {
			return err
		}
		total := unitPrice.Times(input.Quantity)
		code := uuid.NewString()

		if _, err := s.walletSvc.DebitInTx(tx, input.BuyerID, total,
			constants.WalletTxnTypePurchase,
			fmt.Sprintf("purchase:%s", code),
			fmt.Sprintf("购买代金券 #%d x%d", voucher.ID, input.Quantity),
		); err != nil {
			return err
		}

		if !voucher.Unlimited {
			rows, err := voucherRepo.DecrementStock(voucher.ID, input.Quantity)
			if err != nil {
				return err
			}
			if rows == 0 {
				return errConcurrentModification
			}
		}

		created := &models.PurchaseRecord{
			Code:             code,
			VoucherID:        voucher.ID,
			SenderID:         input.BuyerID,
			RecipientName:    recipient.Name,
			RecipientEmail:   recipient.Email,
			RecipientPhone:   recipient.Phone,
			RecipientMessage: recipient.Message,
			Quantity:         input.Quantity,
			UnitPrice:        unitPrice,
			TotalAmount:      total,
			UsageStatus:      constants.UsageStatusUnused,
		}
		if err := s.purchaseRepo.WithTx(tx).Create(created); err != nil {
			return err
		}
		record = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("purchase_created",
		"purchase_id", record.ID,
		"voucher_id", record.VoucherID,
		"buyer_id", record.SenderID,
		"quantity", record.Quantity,
		"total_amount", record.TotalAmount.String(),
	)
	s.notifyChanged(ctx, operationBuy)
	return record, nil
}

// GetPurchase 获取购买记录，ownerID 非 0 时只允许本人查看
func (s *PurchaseService) GetPurchase(ctx context.Context, id uint, ownerID uint) (*models.PurchaseRecord, error) {
	if id == 0 {
		return nil, ErrPurchaseIDRequired
	}
	record, err := s.purchaseRepo.WithContext(ctx).GetByID(id)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if record == nil || (ownerID != 0 && record.SenderID != ownerID) {
		return nil, ErrPurchaseNotFound
	}
	return record, nil
}

// ListPurchases 分页查询购买记录
func (s *PurchaseService) ListPurchases(ctx context.Context, filter repository.PurchaseListFilter) ([]models.PurchaseRecord, int64, error) {
	records, total, err := s.purchaseRepo.WithContext(ctx).List(filter)
	if err != nil {
		return nil, 0, wrapPersistence(err)
	}
	return records, total, nil
}

func (s *PurchaseService) notifyChanged(ctx context.Context, source string) {
	if s.notifier == nil {
		return
	}
	s.notifier.LedgerChanged(context.WithoutCancel(ctx), source)
}

func validateBuyInput(input BuyInput) error {
	if input.VoucherID == 0 {
		return ErrVoucherIDRequired
	}
	if input.BuyerID == 0 {
		return ErrBuyerIDRequired
	}
	if input.Quantity <= 0 {
		return ErrQuantityNotPositive
	}
	return nil
}

// resolveUnitPrice 固定面额券按面额售卖，百分比券按售价售卖
func resolveUnitPrice(voucher *models.Voucher) (models.Money, error) {
	price := voucher.UnitPrice()
	if voucher.IsPercentage && price.Decimal.LessThanOrEqual(decimal.Zero) {
		return models.Money{}, ErrPercentagePriceMissing
	}
	if price.Decimal.LessThan(decimal.Zero) {
		return models.Money{}, ErrAmountNotPositive
	}
	return price, nil
}

func normalizeRecipient(r Recipient) Recipient {
	return Recipient{
		Name:    truncateRunes(strings.TrimSpace(r.Name), 120),
		Email:   truncateRunes(strings.ToLower(strings.TrimSpace(r.Email)), 255),
		Phone:   truncateRunes(strings.TrimSpace(r.Phone), 32),
		Message: truncateRunes(strings.TrimSpace(r.Message), 500),
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
