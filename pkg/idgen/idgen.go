package idgen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// beginTimestamp 2022-01-01 00:00:00 UTC，作为时间戳部分的起点
const beginTimestamp int64 = 1640995200

// countBits 序列号占低 32 位，redis 自增支持 2^64，
// 按天分 key 后单日生成量小于 2^32 即可
const countBits = 32

// Generator 基于 redis 自增序列的全局 ID 生成器。
// 生成的 ID 高 32 位为相对时间戳（秒），低 32 位为当日序列号，
// 同一前缀下严格递增且不重复。
type Generator struct {
	client *redis.Client
}

func New(client *redis.Client) *Generator {
	return &Generator{client: client}
}

// NextID 为指定业务前缀（如 order、shop）生成下一个 ID。
// redis 不可用时直接返回错误，不在内部重试。
func (g *Generator) NextID(ctx context.Context, prefix string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - beginTimestamp

	date := now.Format("20060102")
	seq, err := g.client.Incr(ctx, fmt.Sprintf("icr:%s:%s", prefix, date)).Result()
	if err != nil {
		return 0, fmt.Errorf("idgen incr %s: %w", prefix, err)
	}

	return timestamp<<countBits | seq, nil
}
