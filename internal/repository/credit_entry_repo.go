package repository

import (
	"context"
	"errors"

	"propmarket/internal/model"

	"gorm.io/gorm"
)

type CreditEntryRepository struct {
	db *gorm.DB
}

func NewCreditEntryRepository(db *gorm.DB) *CreditEntryRepository {
	return &CreditEntryRepository{db: db}
}

// Create 追加一条积分流水，必须与余额变更同事务
func (r *CreditEntryRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.CreditEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *CreditEntryRepository) GetByEntryNo(ctx context.Context, entryNo string) (*model.CreditEntry, error) {
	var entry model.CreditEntry
	err := r.db.WithContext(ctx).Where("entry_no = ?", entryNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *CreditEntryRepository) ListByAccountID(ctx context.Context, accountID int64, page, pageSize int) ([]*model.CreditEntry, int64, error) {
	var entries []*model.CreditEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditEntry{}).Where("account_id = ?", accountID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
