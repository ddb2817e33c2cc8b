package idgen

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNextIDConcurrentDistinct(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gen := New(client)
	ctx := context.Background()

	const (
		workers = 20
		perG    = 500
	)
	ids := make([]int64, workers*perG)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				id, err := gen.NextID(ctx, "order")
				if err != nil {
					t.Errorf("NextID: %v", err)
					return
				}
				ids[w*perG+i] = id
			}
		}(w)
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1], "ids must be distinct and strictly increasing when sorted")
	}
}

func TestNextIDTimestampComponent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gen := New(client)
	id, err := gen.NextID(context.Background(), "order")
	require.NoError(t, err)

	// 高 32 位是相对 2022-01-01 的秒数，必须为正且序列号从 1 开始
	require.Greater(t, id>>countBits, int64(0))
	require.Equal(t, int64(1), id&((1<<countBits)-1))
}

func TestNextIDPrefixesIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gen := New(client)
	ctx := context.Background()

	a, err := gen.NextID(ctx, "order")
	require.NoError(t, err)
	b, err := gen.NextID(ctx, "voucher")
	require.NoError(t, err)

	// 不同前缀使用独立计数器，序列号都从 1 开始
	require.Equal(t, a&((1<<countBits)-1), b&((1<<countBits)-1))
}

func TestNextIDRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.Close()

	gen := New(client)
	_, err := gen.NextID(context.Background(), "order")
	require.Error(t, err)
}
