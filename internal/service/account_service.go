package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"propmarket/internal/config"
	"propmarket/internal/model"
	"propmarket/internal/repository"
	"propmarket/pkg/idgen"

	"gorm.io/gorm"
)

type AccountService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	entryRepo   *repository.CreditEntryRepository
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewCreditEntryRepository(db),
	}
}

// Register 注册账户
// 经纪人注册时赠送配置数量的发布积分，赠送与注册同事务，
// 且赠送同样要落流水——发布积分的每一次变动都必须可审计
func (s *AccountService) Register(ctx context.Context, email, role string) (*model.Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, errors.New("邮箱不能为空")
	}
	if !model.ValidRole(role) {
		return nil, errors.New("不支持的角色")
	}

	if _, err := s.accountRepo.GetByEmail(ctx, email); err == nil {
		return nil, repository.ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	account := &model.Account{
		Email: email,
		Role:  role,
	}

	welcome := s.cfg.Business.WelcomeListingCredits

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}

		if role != model.RoleAgent || welcome <= 0 {
			return nil
		}

		if err := s.accountRepo.IncreaseListingCredits(ctx, tx, account.ID, welcome); err != nil {
			return fmt.Errorf("赠送发布积分失败: %w", err)
		}

		entry := &model.CreditEntry{
			EntryNo:       idgen.GenerateEntryNo(),
			AccountID:     account.ID,
			Kind:          model.CreditKindListing,
			Amount:        welcome,
			BalanceBefore: 0,
			BalanceAfter:  welcome,
			Actor:         model.ActorSystem,
			Remark:        "注册赠送",
		}
		if err := s.entryRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录流水失败: %w", err)
		}

		account.ListingCredits = welcome
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, repository.ErrEmailTaken
		}
		return nil, err
	}

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	return s.accountRepo.GetByID(ctx, accountID)
}

// ListAccounts 全部账户，按注册时间倒序（管理员控制台）
func (s *AccountService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.accountRepo.List(ctx)
}

// ListCreditEntries 账户积分流水
func (s *AccountService) ListCreditEntries(ctx context.Context, accountID int64, page, pageSize int) ([]*model.CreditEntry, int64, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.entryRepo.ListByAccountID(ctx, accountID, page, pageSize)
}
