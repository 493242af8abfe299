package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"propmarket/internal/config"
	"propmarket/internal/model"
	"propmarket/internal/repository"
	"propmarket/pkg/idgen"

	"gorm.io/gorm"
)

var ErrZeroDelta = errors.New("调整额度不能为0")

// CreditService 积分账本
// 余额的读-改-写通过条件更新（余额充足 + 版本号匹配）原子完成，
// 并发扣减不会把余额打成负数；每次变动同事务追加一条流水
type CreditService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	entryRepo   *repository.CreditEntryRepository
	outboxRepo  *repository.OutboxRepository
}

func NewCreditService(db *gorm.DB, cfg *config.Config) *CreditService {
	return &CreditService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewCreditEntryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// AdjustCredits 管理员调整通用积分
// delta 正数为发放，负数为扣减；返回调整后的余额
func (s *CreditService) AdjustCredits(ctx context.Context, accountID, delta int64, actor string) (int64, error) {
	return s.adjust(ctx, accountID, delta, actor, model.CreditKindGeneral)
}

// AdjustListingCredits 管理员调整发布积分
func (s *CreditService) AdjustListingCredits(ctx context.Context, accountID, delta int64, actor string) (int64, error) {
	return s.adjust(ctx, accountID, delta, actor, model.CreditKindListing)
}

func (s *CreditService) adjust(ctx context.Context, accountID, delta int64, actor, kind string) (int64, error) {
	if delta == 0 {
		return 0, ErrZeroDelta
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var balanceAfter int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if delta < 0 {
			// 扣减走条件更新：余额不足或版本号过期都会拒绝，余额保持不变
			if kind == model.CreditKindListing {
				err = s.accountRepo.DeductListingCredits(ctx, tx, accountID, -delta, account.Version)
			} else {
				err = s.accountRepo.DeductCredits(ctx, tx, accountID, -delta, account.Version)
			}
		} else {
			if kind == model.CreditKindListing {
				err = s.accountRepo.IncreaseListingCredits(ctx, tx, accountID, delta)
			} else {
				err = s.accountRepo.IncreaseCredits(ctx, tx, accountID, delta)
			}
		}
		if err != nil {
			return err
		}

		// 事务内回读，拿到权威的调整后余额，避免读后写竞态
		var updated model.Account
		if err := tx.WithContext(ctx).Where("id = ?", accountID).First(&updated).Error; err != nil {
			return err
		}
		balanceAfter = updated.Credits
		if kind == model.CreditKindListing {
			balanceAfter = updated.ListingCredits
		}
		balanceBefore := balanceAfter - delta

		entry := &model.CreditEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			AccountID:     accountID,
			Kind:          kind,
			Amount:        delta,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			Actor:         actor,
			Remark:        "管理员手动调整",
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"event":         "credit.adjusted",
			"entry_no":      entry.EntryNo,
			"account_id":    accountID,
			"kind":          kind,
			"amount":        delta,
			"balance_after": balanceAfter,
			"actor":         actor,
			"adjusted_at":   time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: entry.EntryNo,
			Topic:      s.cfg.Kafka.Topic.CreditEvents,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	log.Printf("积分调整成功: accountID=%d, kind=%s, delta=%d, balance=%d", accountID, kind, delta, balanceAfter)

	return balanceAfter, nil
}
