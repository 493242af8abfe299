package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"propmarket/internal/config"
	"propmarket/internal/infrastructure/lock"
	"propmarket/internal/model"
	"propmarket/internal/repository"
	"propmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrNotAgent          = errors.New("仅经纪人可发布房源")
	ErrNotOwner          = errors.New("无权操作他人房源")
	ErrPermissionDenied  = errors.New("无权执行该操作")
	ErrInvalidTransition = errors.New("房源状态不允许该迁移")
	ErrListingArchived   = errors.New("房源已下架，不能修改")
)

type ListingService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	listingRepo *repository.ListingRepository
	accountRepo *repository.AccountRepository
	entryRepo   *repository.CreditEntryRepository
	outboxRepo  *repository.OutboxRepository
}

func NewListingService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ListingService {
	return &ListingService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		listingRepo: repository.NewListingRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewCreditEntryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// CreateListing 发布房源
//
// 发布是核心操作，需要保证：
// 1. 原子性：扣一枚发布积分、插入房源、落流水必须同时成功或同时失败
// 2. 余额不为负：条件更新挡住并发超扣
// 3. 同一经纪人的发布请求通过分布式锁排队
func (s *ListingService) CreateListing(ctx context.Context, agentID int64, attrs *model.ListingAttributes) (*model.Listing, error) {
	if err := model.ValidateAttributes(attrs); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if account.Role != model.RoleAgent {
		return nil, ErrNotAgent
	}

	listingNo := idgen.GenerateListingNo()

	createLock := lock.NewListingLock(s.redisClient, agentID, listingNo)
	if err := createLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer createLock.Unlock(ctx)

	// 拿到锁后重读账户，取最新余额和版本号
	account, err = s.accountRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if account.ListingCredits < 1 {
		return nil, repository.ErrInsufficientListingCredits
	}

	listing := &model.Listing{
		ListingNo:  listingNo,
		AgentID:    agentID,
		Status:     model.ListingStatusPending,
		ViewsCount: 0,
		ImageURLs:  model.StringList{},
		Amenities:  model.StringList{},
	}
	applyAttributes(listing, attrs)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.DeductListingCredits(ctx, tx, agentID, 1, account.Version); err != nil {
			return err
		}

		if err := s.listingRepo.Create(ctx, tx, listing); err != nil {
			return fmt.Errorf("创建房源失败: %w", err)
		}

		entry := &model.CreditEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			AccountID:     agentID,
			Kind:          model.CreditKindListing,
			Amount:        -1,
			BalanceBefore: account.ListingCredits,
			BalanceAfter:  account.ListingCredits - 1,
			Actor:         model.ActorSystem,
			Remark:        fmt.Sprintf("发布房源-%s", listingNo),
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		return s.appendListingEvent(ctx, tx, listing, "listing.created")
	})

	if err != nil {
		return nil, err
	}

	log.Printf("房源发布成功: listingNo=%s, agentID=%d", listingNo, agentID)

	return listing, nil
}

// UpdateListing 更新房源可变字段
// 不触碰 status / agent_id / views_count，不消耗积分
func (s *ListingService) UpdateListing(ctx context.Context, listingID, agentID int64, attrs *model.ListingAttributes) (*model.Listing, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.AgentID != agentID {
		return nil, ErrNotOwner
	}
	if listing.Status == model.ListingStatusArchived {
		return nil, ErrListingArchived
	}

	if err := model.ValidateAttributes(attrs); err != nil {
		return nil, err
	}

	applyAttributes(listing, attrs)

	fields := map[string]interface{}{
		"title":         listing.Title,
		"description":   listing.Description,
		"property_type": listing.PropertyType,
		"listing_type":  listing.ListingType,
		"price":         listing.Price,
		"bedrooms":      listing.Bedrooms,
		"bathrooms":     listing.Bathrooms,
		"area_sqm":      listing.AreaSqm,
		"address":       listing.Address,
		"city":          listing.City,
		"region":        listing.Region,
		"postal_code":   listing.PostalCode,
	}
	if err := s.listingRepo.UpdateFields(ctx, nil, listingID, fields); err != nil {
		return nil, err
	}

	return listing, nil
}

// TransitionStatus 房源状态迁移
//
// 允许的边和执行角色：
//   - PENDING  -> APPROVED  管理员
//   - PENDING  -> REJECTED  管理员
//   - REJECTED -> PENDING   房源所属经纪人（修改后重新提交）
//   - APPROVED -> ARCHIVED  管理员或所属经纪人
//   - REJECTED -> ARCHIVED  管理员或所属经纪人
//
// ARCHIVED 是终态
func (s *ListingService) TransitionStatus(ctx context.Context, listingID, actorID int64, actorRole, targetStatus string) (*model.Listing, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	switch targetStatus {
	case model.ListingStatusApproved, model.ListingStatusRejected:
		if actorRole != model.RoleAdmin {
			return nil, ErrPermissionDenied
		}
	case model.ListingStatusPending:
		if actorRole != model.RoleAgent || listing.AgentID != actorID {
			return nil, ErrNotOwner
		}
	case model.ListingStatusArchived:
		if actorRole != model.RoleAdmin && listing.AgentID != actorID {
			return nil, ErrNotOwner
		}
	default:
		return nil, ErrInvalidTransition
	}

	if !model.CanTransitionTo(listing.Status, targetStatus) {
		return nil, ErrInvalidTransition
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.listingRepo.UpdateStatus(ctx, tx, listingID, listing.Status, targetStatus); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				// 并发迁移先到先得，后来者按非法迁移处理
				return ErrInvalidTransition
			}
			return err
		}
		listing.Status = targetStatus
		return s.appendListingEvent(ctx, tx, listing, "listing.status_changed")
	})

	if err != nil {
		return nil, err
	}

	log.Printf("房源状态迁移: listingNo=%s, status=%s, actor=%d", listing.ListingNo, targetStatus, actorID)

	return listing, nil
}

// AddImage 追加图片，重复添加为幂等空操作
func (s *ListingService) AddImage(ctx context.Context, listingID, agentID int64, url string) (*model.Listing, error) {
	return s.mutateContent(ctx, listingID, agentID, func(c model.ListingContent) (model.ListingContent, error) {
		return c.AddImage(url), nil
	})
}

// RemoveImage 移除图片，必要时主图顺延
func (s *ListingService) RemoveImage(ctx context.Context, listingID, agentID int64, url string) (*model.Listing, error) {
	return s.mutateContent(ctx, listingID, agentID, func(c model.ListingContent) (model.ListingContent, error) {
		return c.RemoveImage(url), nil
	})
}

// SetMainImage 指定主图
func (s *ListingService) SetMainImage(ctx context.Context, listingID, agentID int64, url string) (*model.Listing, error) {
	return s.mutateContent(ctx, listingID, agentID, func(c model.ListingContent) (model.ListingContent, error) {
		return c.SetMainImage(url)
	})
}

// ToggleAmenity 配套设施开关
func (s *ListingService) ToggleAmenity(ctx context.Context, listingID, agentID int64, label string) (*model.Listing, error) {
	return s.mutateContent(ctx, listingID, agentID, func(c model.ListingContent) (model.ListingContent, error) {
		return c.ToggleAmenity(label), nil
	})
}

// mutateContent 图片/配套设施编辑的公共路径：
// 取快照 -> 应用命令得到新快照 -> 整体写回
func (s *ListingService) mutateContent(ctx context.Context, listingID, agentID int64, apply func(model.ListingContent) (model.ListingContent, error)) (*model.Listing, error) {
	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.AgentID != agentID {
		return nil, ErrNotOwner
	}
	if listing.Status == model.ListingStatusArchived {
		return nil, ErrListingArchived
	}

	next, err := apply(listing.Content())
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"image_urls":     next.ImageURLs,
		"main_image_url": next.MainImageURL,
		"amenities":      next.Amenities,
	}
	if err := s.listingRepo.UpdateFields(ctx, nil, listingID, fields); err != nil {
		return nil, err
	}

	listing.ApplyContent(next)
	return listing, nil
}

func (s *ListingService) GetListing(ctx context.Context, listingID int64) (*model.Listing, error) {
	return s.listingRepo.GetByID(ctx, listingID)
}

// RecordView 浏览计数先累加到 Redis，由后台任务批量回写 MySQL
func (s *ListingService) RecordView(ctx context.Context, listingID int64) {
	key := fmt.Sprintf("listing:views:%d", listingID)
	if err := s.redisClient.Incr(ctx, key).Err(); err != nil {
		log.Printf("浏览计数累加失败: listingID=%d, err=%v", listingID, err)
	}
}

func (s *ListingService) ListApproved(ctx context.Context, page, pageSize int) ([]*model.Listing, int64, error) {
	return s.listingRepo.ListApproved(ctx, page, pageSize)
}

func (s *ListingService) ListPending(ctx context.Context, page, pageSize int) ([]*model.Listing, int64, error) {
	return s.listingRepo.ListPending(ctx, page, pageSize)
}

func (s *ListingService) ListByAgent(ctx context.Context, agentID int64, page, pageSize int) ([]*model.Listing, int64, error) {
	return s.listingRepo.ListByAgent(ctx, agentID, page, pageSize)
}

func (s *ListingService) appendListingEvent(ctx context.Context, tx *gorm.DB, listing *model.Listing, event string) error {
	msgPayload := map[string]interface{}{
		"event":       event,
		"listing_no":  listing.ListingNo,
		"agent_id":    listing.AgentID,
		"status":      listing.Status,
		"occurred_at": time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(msgPayload)

	outboxMsg := &model.OutboxMessage{
		MessageKey: listing.ListingNo,
		Topic:      s.cfg.Kafka.Topic.ListingEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

func applyAttributes(listing *model.Listing, attrs *model.ListingAttributes) {
	listing.Title = attrs.Title
	listing.Description = attrs.Description
	listing.PropertyType = attrs.PropertyType
	listing.ListingType = attrs.ListingType
	listing.Price = attrs.Price
	listing.Bedrooms = attrs.Bedrooms
	listing.Bathrooms = attrs.Bathrooms
	listing.AreaSqm = attrs.AreaSqm
	listing.Address = attrs.Address
	listing.City = attrs.City
	listing.Region = attrs.Region
	listing.PostalCode = attrs.PostalCode
}
