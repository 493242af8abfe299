package job

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"propmarket/internal/config"
	"propmarket/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const viewKeyPrefix = "listing:views:"

// ViewSyncJob 浏览数回写任务
// 详情页的浏览计数先累加到 Redis，这里定期批量回写到 MySQL。
// 计数只增不减，丢一两次回写只是延迟，不会导致数字变小
type ViewSyncJob struct {
	db          *gorm.DB
	redisClient *redis.Client
	listingRepo *repository.ListingRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
}

func NewViewSyncJob(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ViewSyncJob {
	interval := time.Duration(cfg.Business.ViewSyncSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ViewSyncJob{
		db:          db,
		redisClient: redisClient,
		listingRepo: repository.NewListingRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    interval,
	}
}

func (j *ViewSyncJob) Start(ctx context.Context) {
	log.Println("[ViewSyncJob] 浏览数回写任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ViewSyncJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ViewSyncJob] 任务停止")
			return
		case <-ticker.C:
			j.Flush(ctx)
		}
	}
}

func (j *ViewSyncJob) Stop() {
	close(j.stopCh)
}

// Flush 把 Redis 中累积的浏览数回写到 MySQL
// GETDEL 取走计数，回写失败时把计数加回去，避免丢数
func (j *ViewSyncJob) Flush(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := j.redisClient.Scan(ctx, cursor, viewKeyPrefix+"*", 100).Result()
		if err != nil {
			log.Printf("[ViewSyncJob] 扫描计数键失败: %v", err)
			return
		}

		for _, key := range keys {
			j.flushKey(ctx, key)
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (j *ViewSyncJob) flushKey(ctx context.Context, key string) {
	listingID, err := strconv.ParseInt(strings.TrimPrefix(key, viewKeyPrefix), 10, 64)
	if err != nil {
		log.Printf("[ViewSyncJob] 非法计数键: %s", key)
		return
	}

	val, err := j.redisClient.GetDel(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[ViewSyncJob] 取计数失败: key=%s, err=%v", key, err)
		}
		return
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil || count <= 0 {
		return
	}

	if err := j.listingRepo.IncrViews(ctx, listingID, count); err != nil {
		log.Printf("[ViewSyncJob] 回写失败: listingID=%d, count=%d, err=%v", listingID, count, err)
		// 加回去，下一轮重试
		if err := j.redisClient.IncrBy(ctx, key, count).Err(); err != nil {
			log.Printf("[ViewSyncJob] 计数恢复失败: key=%s, count=%d, err=%v", key, count, err)
		}
	}
}
