package repository

import (
	"context"
	"strings"

	"github.com/dujiao-next/voucher-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository 钱包数据访问接口
type WalletRepository interface {
	GetAccountByUserID(userID uint) (*models.WalletAccount, error)
	GetAccountByUserIDForUpdate(userID uint) (*models.WalletAccount, error)
	CreateAccount(account *models.WalletAccount) error
	DebitBalance(accountID uint, amount models.Money) (int64, error)
	CreditBalance(accountID uint, amount models.Money) (int64, error)
	CreateTransaction(txn *models.WalletTransaction) error
	CreateTransactionIfAbsent(txn *models.WalletTransaction) (bool, error)
	GetTransactionByReference(userID uint, reference string) (*models.WalletTransaction, error)
	ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) WalletRepository
	WithContext(ctx context.Context) WalletRepository
}

// GormWalletRepository GORM 钱包仓储实现
type GormWalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWalletRepository) WithTx(tx *gorm.DB) WalletRepository {
	if tx == nil {
		return r
	}
	return &GormWalletRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormWalletRepository) WithContext(ctx context.Context) WalletRepository {
	if ctx == nil {
		return r
	}
	return &GormWalletRepository{db: r.db.WithContext(ctx)}
}

// Transaction 在仓储绑定的连接上开启事务
func (r *GormWalletRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// GetAccountByUserID 按用户ID获取钱包账户
func (r *GormWalletRepository) GetAccountByUserID(userID uint) (*models.WalletAccount, error) {
	return r.firstAccount(r.db, userID)
}

// GetAccountByUserIDForUpdate 按用户ID加锁获取钱包账户
func (r *GormWalletRepository) GetAccountByUserIDForUpdate(userID uint) (*models.WalletAccount, error) {
	return r.firstAccount(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *GormWalletRepository) firstAccount(query *gorm.DB, userID uint) (*models.WalletAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	return findOne[models.WalletAccount](query, "user_id = ?", userID)
}

// CreateAccount 创建钱包账户，用户已有账户时不做任何修改（account.ID 保持为 0）
func (r *GormWalletRepository) CreateAccount(account *models.WalletAccount) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(account).Error
}

// DebitBalance 条件扣减余额，余额不足时不更新并返回 0
func (r *GormWalletRepository) DebitBalance(accountID uint, amount models.Money) (int64, error) {
	result := r.db.Model(&models.WalletAccount{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreditBalance 增加余额
func (r *GormWalletRepository) CreditBalance(accountID uint, amount models.Money) (int64, error) {
	result := r.db.Model(&models.WalletAccount{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateTransaction 创建钱包流水
func (r *GormWalletRepository) CreateTransaction(txn *models.WalletTransaction) error {
	return r.db.Create(txn).Error
}

// CreateTransactionIfAbsent 写入流水，同一用户的参考号已存在时不写入并返回 false
func (r *GormWalletRepository) CreateTransactionIfAbsent(txn *models.WalletTransaction) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "reference"}},
		DoNothing: true,
	}).Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetTransactionByReference 按用户与参考号获取流水
func (r *GormWalletRepository) GetTransactionByReference(userID uint, reference string) (*models.WalletTransaction, error) {
	reference = strings.TrimSpace(reference)
	if userID == 0 || reference == "" {
		return nil, nil
	}
	return findOne[models.WalletTransaction](r.db, "user_id = ? AND reference = ?", userID, reference)
}

// ListTransactions 分页查询钱包流水，按 id 倒序
func (r *GormWalletRepository) ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	query := r.db.Model(&models.WalletTransaction{}).Scopes(walletTransactionScope(filter))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txns []models.WalletTransaction
	if err := applyPagination(query, filter.Page, filter.PageSize).Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func walletTransactionScope(filter WalletTransactionListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		conds := map[string]interface{}{}
		if filter.UserID != 0 {
			conds["user_id"] = filter.UserID
		}
		if filter.Type != "" {
			conds["type"] = filter.Type
		}
		if filter.Direction != "" {
			conds["direction"] = filter.Direction
		}
		if len(conds) > 0 {
			db = db.Where(conds)
		}
		if filter.CreatedFrom != nil {
			db = db.Where("created_at >= ?", *filter.CreatedFrom)
		}
		if filter.CreatedTo != nil {
			db = db.Where("created_at <= ?", *filter.CreatedTo)
		}
		return db
	}
}
