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

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	operationTopUp = "top_up"
)

// WalletService 钱包服务
type WalletService struct {
	walletRepo repository.WalletRepository
	userRepo   repository.UserRepository
	runner     *LedgerRunner
	metrics    *metrics.LedgerMetrics
}

// TopUpInput 余额充值输入
type TopUpInput struct {
	UserID    uint
	Amount    models.Money
	Reference string // 外部幂等号，重复提交时返回首次结果
	Remark    string
}

// NewWalletService 创建钱包服务
func NewWalletService(
	walletRepo repository.WalletRepository,
	userRepo repository.UserRepository,
	runner *LedgerRunner,
	m *metrics.LedgerMetrics,
) *WalletService {
	return &WalletService{
		walletRepo: walletRepo,
		userRepo:   userRepo,
		runner:     runner,
		metrics:    m,
	}
}

// GetBalance 获取用户余额账户，账户不存在时返回零余额
func (s *WalletService) GetBalance(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	if userID == 0 {
		return nil, ErrBuyerIDRequired
	}
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	account, err := s.walletRepo.WithContext(ctx).GetAccountByUserID(userID)
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if account == nil {
		return &models.WalletAccount{UserID: userID, Balance: models.NewMoneyFromDecimal(decimal.Zero)}, nil
	}
	return account, nil
}

// ListTransactions 查询钱包流水
func (s *WalletService) ListTransactions(ctx context.Context, filter repository.WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	txns, total, err := s.walletRepo.WithContext(ctx).ListTransactions(filter)
	if err != nil {
		return nil, 0, wrapPersistence(err)
	}
	return txns, total, nil
}

// TopUp 为用户充值余额并记录流水
func (s *WalletService) TopUp(ctx context.Context, input TopUpInput) (account *models.WalletAccount, txn *models.WalletTransaction, err error) {
	startedAt := time.Now()
	defer func() { observe(s.metrics, operationTopUp, startedAt, err) }()

	if input.UserID == 0 {
		return nil, nil, ErrBuyerIDRequired
	}
	amount := input.Amount.Decimal.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrAmountNotPositive
	}
	user, err := s.userRepo.WithContext(ctx).GetByID(input.UserID)
	if err != nil {
		return nil, nil, wrapPersistence(err)
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}

	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		reference = buildWalletReference(constants.WalletTxnTypeTopUp, input.UserID)
	}
	remark := cleanWalletRemark(input.Remark, "余额充值")

	err = s.runner.Run(ctx, operationTopUp, func(tx *gorm.DB) error {
		repo := s.walletRepo.WithTx(tx)
		// 先锁账户再查参考号，同一用户的并发充值在行锁上串行
		locked, err := s.ensureAccountForUpdate(repo, input.UserID)
		if err != nil {
			return err
		}
		exists, err := repo.GetTransactionByReference(input.UserID, reference)
		if err != nil {
			return err
		}
		if exists != nil {
			account, txn = locked, exists
			return nil
		}

		before := locked.Balance.Decimal.Round(2)
		after := before.Add(amount).Round(2)
		rows, err := repo.CreditBalance(locked.ID, models.NewMoneyFromDecimal(amount))
		if err != nil {
			return err
		}
		if rows == 0 {
			return errConcurrentModification
		}
		record := &models.WalletTransaction{
			UserID:        input.UserID,
			Type:          constants.WalletTxnTypeTopUp,
			Direction:     constants.WalletTxnDirectionIn,
			Amount:        models.NewMoneyFromDecimal(amount),
			BalanceBefore: models.NewMoneyFromDecimal(before),
			BalanceAfter:  models.NewMoneyFromDecimal(after),
			Reference:     reference,
			Remark:        remark,
		}
		created, err := repo.CreateTransactionIfAbsent(record)
		if err != nil {
			return err
		}
		if !created {
			return errConcurrentModification
		}
		locked.Balance = models.NewMoneyFromDecimal(after)
		account, txn = locked, record
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infow("wallet_top_up",
		"user_id", input.UserID,
		"amount", txn.Amount.String(),
		"balance_after", txn.BalanceAfter.String(),
		"reference", txn.Reference,
	)
	return account, txn, nil
}

// DebitInTx 在调用方事务内扣减余额并记录流水
// 余额不足返回 ErrWalletInsufficientFunds，条件扣减未命中返回并发冲突信号由调用方重试
func (s *WalletService) DebitInTx(tx *gorm.DB, userID uint, amount models.Money, txnType, reference, remark string) (*models.WalletTransaction, error) {
	if tx == nil {
		return nil, ErrPersistence
	}
	if userID == 0 {
		return nil, ErrBuyerIDRequired
	}
	deduct := amount.Decimal.Round(2)
	if deduct.LessThan(decimal.Zero) {
		return nil, ErrAmountNotPositive
	}
	if deduct.IsZero() {
		return nil, nil
	}

	repo := s.walletRepo.WithTx(tx)
	account, err := repo.GetAccountByUserIDForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrWalletInsufficientFunds
	}
	before := account.Balance.Decimal.Round(2)
	if before.LessThan(deduct) {
		return nil, ErrWalletInsufficientFunds
	}
	rows, err := repo.DebitBalance(account.ID, models.NewMoneyFromDecimal(deduct))
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errConcurrentModification
	}

	after := before.Sub(deduct).Round(2)
	txn := &models.WalletTransaction{
		UserID:        userID,
		Type:          txnType,
		Direction:     constants.WalletTxnDirectionOut,
		Amount:        models.NewMoneyFromDecimal(deduct),
		BalanceBefore: models.NewMoneyFromDecimal(before),
		BalanceAfter:  models.NewMoneyFromDecimal(after),
		Reference:     reference,
		Remark:        remark,
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *WalletService) ensureAccountForUpdate(repo repository.WalletRepository, userID uint) (*models.WalletAccount, error) {
	account, err := repo.GetAccountByUserIDForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	if err := repo.CreateAccount(&models.WalletAccount{
		UserID:  userID,
		Balance: models.NewMoneyFromDecimal(decimal.Zero),
	}); err != nil {
		return nil, err
	}
	account, err = repo.GetAccountByUserIDForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errConcurrentModification
	}
	return account, nil
}

func buildWalletReference(prefix string, userID uint) string {
	return fmt.Sprintf("%s:%d:%d", prefix, userID, time.Now().UnixNano())
}

func cleanWalletRemark(remark, fallback string) string {
	remark = strings.TrimSpace(remark)
	if remark == "" {
		return fallback
	}
	if len([]rune(remark)) > 255 {
		return string([]rune(remark)[:255])
	}
	return remark
}
