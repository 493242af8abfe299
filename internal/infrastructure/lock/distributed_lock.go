package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 发布房源需要"扣一枚发布积分 + 插入房源"两步同事务完成。
// 事务内的条件更新已经能挡住超扣，但同一经纪人连点两次发布按钮时，
// 两个请求会各自读到相同余额再去竞争乐观锁，其中一个白白失败重试。
// 按经纪人维度加锁让同一经纪人的发布请求排队，不同经纪人互不影响。
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本先校验 value 再删除，避免误删他人持有的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 基于 Redis 的互斥锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 持有者标识，释放时校验
	expiration time.Duration // 过期时间，防止持有者崩溃导致死锁
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 脚本保证"检查+删除"的原子性
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewListingLock 发布房源锁（按经纪人维度）
// value 用房源编号，便于追踪是哪次发布持有锁
func NewListingLock(client *redis.Client, agentID int64, listingNo string) *DistributedLock {
	key := fmt.Sprintf("listing:lock:agent:%d", agentID)
	return NewDistributedLock(client, key, listingNo, 30*time.Second)
}
