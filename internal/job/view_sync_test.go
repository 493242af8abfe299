package job

import (
	"context"
	"fmt"
	"testing"

	"propmarket/internal/config"
	"propmarket/internal/model"
	"propmarket/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newViewSyncEnv(t *testing.T) (*ViewSyncJob, *gorm.DB, *redis.Client) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Listing{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{}
	cfg.Business.ViewSyncSeconds = 1

	return NewViewSyncJob(db, rdb, cfg), db, rdb
}

func seedListing(t *testing.T, db *gorm.DB) *model.Listing {
	t.Helper()
	listing := &model.Listing{
		ListingNo: "LST20240101000000000001",
		AgentID:   1,
		Title:     "城东两居室",
		Status:    model.ListingStatusApproved,
		ImageURLs: model.StringList{},
		Amenities: model.StringList{},
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func TestFlushWritesBackViews(t *testing.T) {
	job, db, rdb := newViewSyncEnv(t)
	listing := seedListing(t, db)
	ctx := context.Background()

	key := fmt.Sprintf("listing:views:%d", listing.ID)
	require.NoError(t, rdb.IncrBy(ctx, key, 5).Err())

	job.Flush(ctx)

	repo := repository.NewListingRepository(db)
	reloaded, err := repo.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reloaded.ViewsCount)

	// 计数已取走，键不复存在
	_, err = rdb.Get(ctx, key).Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestFlushAccumulates(t *testing.T) {
	job, db, rdb := newViewSyncEnv(t)
	listing := seedListing(t, db)
	ctx := context.Background()

	key := fmt.Sprintf("listing:views:%d", listing.ID)
	require.NoError(t, rdb.IncrBy(ctx, key, 3).Err())
	job.Flush(ctx)

	require.NoError(t, rdb.IncrBy(ctx, key, 2).Err())
	job.Flush(ctx)

	repo := repository.NewListingRepository(db)
	reloaded, err := repo.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), reloaded.ViewsCount)
}

func TestFlushIgnoresGarbageKeys(t *testing.T) {
	job, _, rdb := newViewSyncEnv(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "listing:views:not-a-number", "9", 0).Err())

	// 非法键跳过，不 panic 也不清掉
	job.Flush(ctx)

	val, err := rdb.Get(ctx, "listing:views:not-a-number").Result()
	require.NoError(t, err)
	assert.Equal(t, "9", val)
}
