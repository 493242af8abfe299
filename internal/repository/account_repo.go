package repository

import (
	"context"
	"errors"
	"fmt"

	"propmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound            = errors.New("账户不存在")
	ErrEmailTaken                 = errors.New("邮箱已被注册")
	ErrInsufficientBalance        = errors.New("积分余额不足")
	ErrInsufficientListingCredits = errors.New("发布积分不足")
	ErrOptimisticLock             = errors.New("乐观锁冲突，请重试")
)

// 余额列白名单，条件更新只允许操作这两列
const (
	columnCredits        = "credits"
	columnListingCredits = "listing_credits"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// List 返回全部账户，按注册时间倒序
func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&accounts).Error
	return accounts, err
}

// DeductCredits 扣减通用积分
// 条件更新保证余额不会被扣成负数：WHERE 同时检查余额充足和版本号，
// RowsAffected == 0 时再区分是余额不足还是并发冲突
func (r *AccountRepository) DeductCredits(ctx context.Context, tx *gorm.DB, accountID, amount int64, version int) error {
	return r.deduct(ctx, tx, accountID, columnCredits, amount, version, ErrInsufficientBalance)
}

// IncreaseCredits 增加通用积分
func (r *AccountRepository) IncreaseCredits(ctx context.Context, tx *gorm.DB, accountID, amount int64) error {
	return r.increase(ctx, tx, accountID, columnCredits, amount)
}

// DeductListingCredits 扣减发布积分（发布房源时扣一枚）
func (r *AccountRepository) DeductListingCredits(ctx context.Context, tx *gorm.DB, accountID, amount int64, version int) error {
	return r.deduct(ctx, tx, accountID, columnListingCredits, amount, version, ErrInsufficientListingCredits)
}

// IncreaseListingCredits 增加发布积分
func (r *AccountRepository) IncreaseListingCredits(ctx context.Context, tx *gorm.DB, accountID, amount int64) error {
	return r.increase(ctx, tx, accountID, columnListingCredits, amount)
}

func (r *AccountRepository) deduct(ctx context.Context, tx *gorm.DB, accountID int64, column string, amount int64, version int, insufficientErr error) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where(fmt.Sprintf("id = ? AND %s >= ? AND version = ?", column), accountID, amount, version).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 用同一个事务连接回读，区分余额不足和版本号冲突
		var account model.Account
		if err := tx.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		balance := account.Credits
		if column == columnListingCredits {
			balance = account.ListingCredits
		}
		if balance < amount {
			return insufficientErr
		}
		return ErrOptimisticLock
	}

	return nil
}

func (r *AccountRepository) increase(ctx context.Context, tx *gorm.DB, accountID int64, column string, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			column:    gorm.Expr(column+" + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
