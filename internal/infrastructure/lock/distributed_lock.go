package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【用在哪里？】
//
// 余额的正确性由数据库事务 + 乐观锁保证，分布式锁只用来串行化
// "事务之外还有外部调用"的流程：
//
//   - 提现/自动打款：同一卖家的打款请求必须排队，否则两次请求可能同时
//     调用渠道转账接口
//   - webhook 入账：渠道并发重推同一参考号时，只让一个请求去渠道核验
//
// 加锁：SET key value NX EX timeout
// 释放：Lua 脚本先比对 value 再删除，防止误删别人的锁
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
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
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
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
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// RedisLocker：供业务层注入的锁工厂
// ============================================================================

// RedisLocker 按 key 获取分布式锁
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, expiration, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// Acquire 获取锁，返回释放函数
// owner 建议使用请求ID或单号，便于排查是谁持有锁
func (r *RedisLocker) Acquire(ctx context.Context, key, owner string) (func(), error) {
	l := NewDistributedLock(r.client, key, owner, r.expiration)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("%w: key=%s", ErrLockFailed, key)
	}
	return func() {
		// 请求 ctx 可能已取消，释放锁使用独立的短超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(unlockCtx)
	}, nil
}

// PayoutKey 卖家维度的打款锁
func PayoutKey(sellerID string) string {
	return fmt.Sprintf("payout:lock:seller:%s", sellerID)
}

// DepositKey 渠道参考号维度的入账锁
func DepositKey(provider, reference string) string {
	return fmt.Sprintf("deposit:lock:%s:%s", provider, reference)
}
