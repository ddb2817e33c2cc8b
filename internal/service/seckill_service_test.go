package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/cache"
	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/pkg/idgen"
)

type serviceFixture struct {
	svc         SeckillService
	persister   *OrderPersister
	orderRepo   repository.OrderRepository
	voucherRepo repository.VoucherRepository
	client      *redis.Client
	stop        func(context.Context) error
}

func setupService(t *testing.T) *serviceFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接：每个 sqlite 内存连接是独立的库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	voucherRepo := repository.NewVoucherRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	campaigns := cache.NewCampaignCache(client, voucherRepo, 10*time.Minute)
	gen := idgen.New(client)
	persister := NewOrderPersister(db, client, orderRepo, 1024, time.Second)
	stop := persister.Start()
	t.Cleanup(func() { _ = stop(context.Background()) })

	svc := NewSeckillService(client, voucherRepo, orderRepo, campaigns, gen, persister)
	return &serviceFixture{
		svc:         svc,
		persister:   persister,
		orderRepo:   orderRepo,
		voucherRepo: voucherRepo,
		client:      client,
		stop:        stop,
	}
}

func (f *serviceFixture) createCampaign(t *testing.T, stock int64, begin, end time.Time) int64 {
	voucher := &model.SeckillVoucher{
		Title:     "test voucher",
		Stock:     stock,
		BeginTime: begin,
		EndTime:   end,
	}
	require.NoError(t, f.svc.CreateCampaign(context.Background(), voucher))
	return voucher.VoucherID
}

func TestCreateCampaignSeedsRedisStock(t *testing.T) {
	f := setupService(t)
	id := f.createCampaign(t, 42, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	stock, err := f.client.Get(context.Background(), stockKey(id)).Int64()
	require.NoError(t, err)
	require.EqualValues(t, 42, stock)
}

func TestPlaceOrderCampaignNotFound(t *testing.T) {
	f := setupService(t)
	_, err := f.svc.PlaceOrder(context.Background(), 424242, 1)
	require.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPlaceOrderCampaignNotActive(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	notStarted := f.createCampaign(t, 10, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	_, err := f.svc.PlaceOrder(ctx, notStarted, 1)
	require.ErrorIs(t, err, ErrCampaignNotActive)

	ended := f.createCampaign(t, 10, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	_, err = f.svc.PlaceOrder(ctx, ended, 1)
	require.ErrorIs(t, err, ErrCampaignNotActive)
}

func TestPlaceOrderSingleStockHundredCallers(t *testing.T) {
	f := setupService(t)
	id := f.createCampaign(t, 1, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	const callers = 100
	var admitted, soldOut atomic.Int64
	var wg sync.WaitGroup
	for u := int64(1); u <= callers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), id, userID)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				soldOut.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	require.EqualValues(t, 1, admitted.Load(), "exactly one caller wins a single-stock campaign")
	require.EqualValues(t, callers-1, soldOut.Load())
}

func TestPlaceOrderSameUserConcurrentRetries(t *testing.T) {
	f := setupService(t)
	id := f.createCampaign(t, 10, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	const attempts = 10
	var admitted, duplicate atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), id, 7)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, ErrDuplicatePurchase):
				duplicate.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, admitted.Load(), "a user gets at most one order per voucher")
	require.EqualValues(t, attempts-1, duplicate.Load())

	// 其余库存没有被同一用户消耗
	stock, err := f.client.Get(context.Background(), stockKey(id)).Int64()
	require.NoError(t, err)
	require.EqualValues(t, 9, stock)
}

func TestPlaceOrderEventuallyPersisted(t *testing.T) {
	f := setupService(t)
	id := f.createCampaign(t, 5, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	orderID, err := f.svc.PlaceOrder(context.Background(), id, 7)
	require.NoError(t, err)
	require.Greater(t, orderID, int64(0))

	require.Eventually(t, func() bool {
		order, err := f.orderRepo.GetByOrderID(context.Background(), orderID)
		return err == nil && order != nil
	}, 5*time.Second, 20*time.Millisecond, "admitted order must eventually be durable")

	order, err := f.svc.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.EqualValues(t, 7, order.UserID)
	require.EqualValues(t, id, order.VoucherID)

	// 落库时同步扣减数据库库存
	require.Eventually(t, func() bool {
		v, err := f.voucherRepo.GetByID(context.Background(), id)
		return err == nil && v != nil && v.Stock == 4
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPlaceOrderPersistedCountMatchesAdmitted(t *testing.T) {
	f := setupService(t)
	const stock = 8
	id := f.createCampaign(t, stock, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for u := int64(1); u <= 30; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if _, err := f.svc.PlaceOrder(context.Background(), id, userID); err == nil {
				admitted.Add(1)
			}
		}(u)
	}
	wg.Wait()

	require.EqualValues(t, stock, admitted.Load())
	require.Eventually(t, func() bool {
		count, err := f.orderRepo.Count(context.Background())
		return err == nil && count == stock
	}, 5*time.Second, 20*time.Millisecond, "every admitted order becomes exactly one durable row")
}
