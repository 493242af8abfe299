package service

import (
	"context"
	"testing"

	"propmarket/internal/config"
	"propmarket/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testCtx() context.Context {
	return context.Background()
}

// testEnv 服务层测试环境：内存 SQLite + miniredis
type testEnv struct {
	db       *gorm.DB
	rdb      *redis.Client
	cfg      *config.Config
	accounts *AccountService
	credits  *CreditService
	listings *ListingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库在连接间不共享，收紧到单连接
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Account{},
		&model.Listing{},
		&model.CreditEntry{},
		&model.OutboxMessage{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				ListingEvents: "listing_events_test",
				CreditEvents:  "credit_events_test",
			},
		},
		Business: config.BusinessConfig{
			WelcomeListingCredits: 1,
			MaxRetryCount:         3,
		},
	}

	return &testEnv{
		db:       db,
		rdb:      rdb,
		cfg:      cfg,
		accounts: NewAccountService(db, cfg),
		credits:  NewCreditService(db, cfg),
		listings: NewListingService(db, rdb, cfg),
	}
}

func (e *testEnv) mustRegister(t *testing.T, email, role string) *model.Account {
	t.Helper()
	account, err := e.accounts.Register(testCtx(), email, role)
	require.NoError(t, err)
	return account
}

func (e *testEnv) reloadAccount(t *testing.T, id int64) *model.Account {
	t.Helper()
	account, err := e.accounts.GetAccount(testCtx(), id)
	require.NoError(t, err)
	return account
}

func (e *testEnv) countListings(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Listing{}).Count(&n).Error)
	return n
}

func validListingAttrs() *model.ListingAttributes {
	return &model.ListingAttributes{
		Title:        "两室一厅",
		Description:  "近地铁，南北通透",
		PropertyType: model.PropertyTypeApartment,
		ListingType:  model.ListingTypeRent,
		Price:        3500,
		Bedrooms:     2,
		Bathrooms:    1,
		AreaSqm:      86,
		Address:      "幸福路1号",
		City:         "上海",
		Region:       "徐汇",
		PostalCode:   "200030",
	}
}
