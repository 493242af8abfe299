package repository

import (
	"context"
	"errors"

	"propmarket/internal/model"

	"gorm.io/gorm"
)

var (
	ErrListingNotFound = errors.New("房源不存在")
	ErrStatusConflict  = errors.New("房源状态不允许该操作")
)

type ListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) Create(ctx context.Context, tx *gorm.DB, listing *model.Listing) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(listing).Error
}

func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (r *ListingRepository) GetByListingNo(ctx context.Context, listingNo string) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.WithContext(ctx).Where("listing_no = ?", listingNo).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// UpdateStatus 带前置状态检查的状态迁移
// WHERE status = fromStatus 构成对状态的 CAS，并发迁移只有一个能成功
func (r *ListingRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

// UpdateFields 更新可变字段，status / agent_id / views_count 由各自的专用方法维护
func (r *ListingRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, fields map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrListingNotFound
	}

	return nil
}

// IncrViews 浏览数累加，只增不减
func (r *ListingRepository) IncrViews(ctx context.Context, id int64, n int64) error {
	if n <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ?", id).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", n)).Error
}

// ListApproved 已上架房源，对普通用户可见
func (r *ListingRepository) ListApproved(ctx context.Context, page, pageSize int) ([]*model.Listing, int64, error) {
	return r.listByStatus(ctx, model.ListingStatusApproved, page, pageSize)
}

// ListPending 待审核房源，管理员审核队列
func (r *ListingRepository) ListPending(ctx context.Context, page, pageSize int) ([]*model.Listing, int64, error) {
	return r.listByStatus(ctx, model.ListingStatusPending, page, pageSize)
}

func (r *ListingRepository) listByStatus(ctx context.Context, status string, page, pageSize int) ([]*model.Listing, int64, error) {
	var listings []*model.Listing
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Listing{}).Where("status = ?", status)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error

	return listings, total, err
}

// ListByAgent 经纪人名下的全部房源（含已下架）
func (r *ListingRepository) ListByAgent(ctx context.Context, agentID int64, page, pageSize int) ([]*model.Listing, int64, error) {
	var listings []*model.Listing
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Listing{}).Where("agent_id = ?", agentID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error

	return listings, total, err
}
