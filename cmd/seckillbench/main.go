package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/cache"
	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/internal/service"
	"github.com/d60-Lab/seckill-go/pkg/idgen"
)

func main() {
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	db := must(gorm.Open(postgres.Open(dsn), &gorm.Config{}))
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	mustDo(rdb.Ping(ctx).Err())

	// Clean up existing test data
	mustDo(db.Exec("DROP TABLE IF EXISTS voucher_orders CASCADE").Error)
	mustDo(db.Exec("DROP TABLE IF EXISTS seckill_vouchers CASCADE").Error)
	mustDo(db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}))
	mustDo(rdb.FlushDB(ctx).Err())

	const (
		stock       = 5000
		users       = 20000
		concurrency = 200
	)

	voucherRepo := repository.NewVoucherRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	campaigns := cache.NewCampaignCache(rdb, voucherRepo, 10*time.Minute)
	gen := idgen.New(rdb)
	persister := service.NewOrderPersister(db, rdb, orderRepo, 1<<20, 5*time.Second)
	stopPersister := persister.Start()
	svc := service.NewSeckillService(rdb, voucherRepo, orderRepo, campaigns, gen, persister)

	fmt.Println("Setting up campaign...")
	voucher := &model.SeckillVoucher{
		Title:     "bench voucher",
		Stock:     stock,
		BeginTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now().Add(time.Hour),
	}
	mustDo(svc.CreateCampaign(ctx, voucher))

	fmt.Printf("Firing %d users at stock=%d with %d workers...\n", users, stock, concurrency)

	var (
		admitted  atomic.Int64
		soldOut   atomic.Int64
		duplicate atomic.Int64
		failed    atomic.Int64
	)
	latencies := make([]time.Duration, users)

	jobs := make(chan int64, users)
	for u := int64(1); u <= users; u++ {
		jobs <- u
	}
	close(jobs)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				t0 := time.Now()
				_, err := svc.PlaceOrder(ctx, voucher.VoucherID, userID)
				latencies[userID-1] = time.Since(t0)
				switch err {
				case nil:
					admitted.Add(1)
				case service.ErrInsufficientStock:
					soldOut.Add(1)
				case service.ErrDuplicatePurchase:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("done in %v (%.0f req/s)\n", elapsed, float64(users)/elapsed.Seconds())
	fmt.Printf("admitted=%d soldout=%d duplicate=%d failed=%d\n",
		admitted.Load(), soldOut.Load(), duplicate.Load(), failed.Load())
	fmt.Printf("latency avg=%v p50=%v p99=%v\n", avg(latencies), pct(latencies, 0.50), pct(latencies, 0.99))

	fmt.Println("Waiting for persister to drain...")
	for persister.Pending() > 0 {
		time.Sleep(100 * time.Millisecond)
	}
	mustDo(stopPersister(ctx))

	persisted := must(orderRepo.Count(ctx))
	remaining := must(voucherRepo.GetByID(ctx, voucher.VoucherID)).Stock
	fmt.Printf("persisted orders=%d db stock remaining=%d\n", persisted, remaining)
	if persisted != admitted.Load() {
		fmt.Printf("WARNING: persisted %d != admitted %d\n", persisted, admitted.Load())
	}
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
