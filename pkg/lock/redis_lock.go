package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// processID 进程级唯一标识，进程启动时生成一次。
// 锁的持有者标识由 processID 和单调递增的计数器组成，
// 保证跨进程、跨 goroutine 都不会出现相同的 token。
var processID = uuid.NewString()

var acquireSeq atomic.Int64

// unlockScript 比较持有者标识后再删除，整体原子执行。
// 先 GET 再 DEL 的两步写法在锁过期、被他人重新获取的间隙中会误删他人的锁。
var unlockScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// RedisLock 基于 redis SET NX 的分布式锁，带持有者标识
type RedisLock struct {
	client *redis.Client
	name   string
	token  string
	ttl    time.Duration
}

// New 创建一把以业务 key 命名的锁，每次获取尝试使用独立的 token
func New(client *redis.Client, name string, ttl time.Duration) *RedisLock {
	token := fmt.Sprintf("%s-%d", processID, acquireSeq.Add(1))
	return &RedisLock{client: client, name: name, token: token, ttl: ttl}
}

// TryLock 尝试获取锁，不阻塞。返回 false 表示锁被他人持有。
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+l.name, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.name, err)
	}
	return ok, nil
}

// Unlock 释放锁。只有 token 匹配时才删除，token 不匹配（已过期被他人持有）时为空操作。
func (l *RedisLock) Unlock(ctx context.Context) error {
	err := unlockScript.Run(ctx, l.client, []string{keyPrefix + l.name}, l.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock %s: %w", l.name, err)
	}
	return nil
}

// Token 返回本次获取使用的持有者标识
func (l *RedisLock) Token() string { return l.token }
