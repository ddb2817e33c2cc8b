package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupAdmission(t *testing.T, voucherID, stock int64) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Set(context.Background(), stockKey(voucherID), stock, 0).Err())
	return client
}

func TestAdmitDecrementsStockOnce(t *testing.T) {
	client := setupAdmission(t, 100, 3)
	ctx := context.Background()

	res, err := admit(ctx, client, 100, 1)
	require.NoError(t, err)
	require.EqualValues(t, admitOK, res)

	stock, err := client.Get(ctx, stockKey(100)).Int64()
	require.NoError(t, err)
	require.EqualValues(t, 2, stock)

	member, err := client.SIsMember(ctx, orderSetKey(100), "1").Result()
	require.NoError(t, err)
	require.True(t, member)
}

func TestAdmitDuplicateUser(t *testing.T) {
	client := setupAdmission(t, 100, 10)
	ctx := context.Background()

	res, err := admit(ctx, client, 100, 7)
	require.NoError(t, err)
	require.EqualValues(t, admitOK, res)

	res, err = admit(ctx, client, 100, 7)
	require.NoError(t, err)
	require.EqualValues(t, admitDuplicatePurchase, res)

	// 重复请求不能扣库存
	stock, err := client.Get(ctx, stockKey(100)).Int64()
	require.NoError(t, err)
	require.EqualValues(t, 9, stock)
}

func TestAdmitMissingStockKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	res, err := admit(context.Background(), client, 999, 1)
	require.NoError(t, err)
	require.EqualValues(t, admitInsufficientStock, res)
}

func TestAdmitConcurrentNeverOversells(t *testing.T) {
	const (
		stock   = 5
		callers = 50
	)
	client := setupAdmission(t, 100, stock)

	var admitted, rejected atomic.Int64
	var wg sync.WaitGroup
	for u := int64(1); u <= callers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			res, err := admit(context.Background(), client, 100, userID)
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			switch res {
			case admitOK:
				admitted.Add(1)
			case admitInsufficientStock:
				rejected.Add(1)
			default:
				t.Errorf("unexpected result %d", res)
			}
		}(u)
	}
	wg.Wait()

	require.EqualValues(t, stock, admitted.Load())
	require.EqualValues(t, callers-stock, rejected.Load())

	remaining, err := client.Get(context.Background(), stockKey(100)).Int64()
	require.NoError(t, err)
	require.EqualValues(t, 0, remaining)

	members, err := client.SCard(context.Background(), orderSetKey(100)).Result()
	require.NoError(t, err)
	require.EqualValues(t, stock, members, "admitted set size must equal initial stock")
}
