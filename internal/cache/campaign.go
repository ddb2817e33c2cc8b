package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/pkg/lock"
	"github.com/d60-Lab/seckill-go/pkg/logger"
)

const (
	campaignKeyPrefix = "cache:seckill:"
	rebuildLockPrefix = "cache:seckill:rebuild:"
	rebuildLockTTL    = 10 * time.Second
)

// envelope wraps the cached payload with a logical expiry timestamp.
// The redis key itself never expires; staleness is decided by ExpireAt.
type envelope struct {
	ExpireAt time.Time       `json:"expire_at"`
	Data     json.RawMessage `json:"data"`
}

// CampaignCache 秒杀券读穿缓存，逻辑过期 + 互斥重建。
// 过期后返回旧值并异步重建，避免热点券过期瞬间击穿数据库。
type CampaignCache struct {
	client *redis.Client
	repo   repository.VoucherRepository
	ttl    time.Duration
}

func NewCampaignCache(client *redis.Client, repo repository.VoucherRepository, ttl time.Duration) *CampaignCache {
	return &CampaignCache{client: client, repo: repo, ttl: ttl}
}

// Get 查询秒杀券。缓存未命中时回源数据库并写入缓存；
// 逻辑过期时返回旧值，同时持有重建锁的调用方异步刷新。
// 数据库和缓存都没有时返回 (nil, nil)。
func (c *CampaignCache) Get(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	key := campaignKeyPrefix + fmt.Sprint(voucherID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return c.loadAndCache(ctx, voucherID)
	}
	if err != nil {
		// 缓存不可用降级为直接读库
		logger.Log.Warn("campaign cache read failed, falling back to db",
			zap.Int64("voucher_id", voucherID), zap.Error(err))
		return c.repo.GetByID(ctx, voucherID)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return c.loadAndCache(ctx, voucherID)
	}
	var voucher model.SeckillVoucher
	if err := json.Unmarshal(env.Data, &voucher); err != nil {
		return c.loadAndCache(ctx, voucherID)
	}

	if time.Now().Before(env.ExpireAt) {
		return &voucher, nil
	}

	// 逻辑过期：抢到重建锁的请求负责异步刷新，其余请求直接用旧值
	rebuildLock := lock.New(c.client, rebuildLockPrefix+fmt.Sprint(voucherID), rebuildLockTTL)
	if ok, lockErr := rebuildLock.TryLock(ctx); lockErr == nil && ok {
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			defer func() { _ = rebuildLock.Unlock(bg) }()
			if _, err := c.loadAndCache(bg, voucherID); err != nil {
				logger.Log.Warn("campaign cache rebuild failed",
					zap.Int64("voucher_id", voucherID), zap.Error(err))
			}
		}()
	}
	return &voucher, nil
}

// Set 写入缓存并附带逻辑过期时间
func (c *CampaignCache) Set(ctx context.Context, voucher *model.SeckillVoucher) error {
	data, err := json.Marshal(voucher)
	if err != nil {
		return err
	}
	env := envelope{ExpireAt: time.Now().Add(c.ttl), Data: data}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, campaignKeyPrefix+fmt.Sprint(voucher.VoucherID), payload, 0).Err()
}

func (c *CampaignCache) loadAndCache(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	voucher, err := c.repo.GetByID(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, nil
	}
	if err := c.Set(ctx, voucher); err != nil {
		logger.Log.Warn("campaign cache write failed",
			zap.Int64("voucher_id", voucherID), zap.Error(err))
	}
	return voucher, nil
}
