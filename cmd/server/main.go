package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/api"
	"github.com/d60-Lab/seckill-go/internal/api/handler"
	"github.com/d60-Lab/seckill-go/internal/cache"
	"github.com/d60-Lab/seckill-go/internal/config"
	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/internal/service"
	"github.com/d60-Lab/seckill-go/pkg/idgen"
	"github.com/d60-Lab/seckill-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Log.Fatal("open database", zap.Error(err))
	}
	if err := db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}); err != nil {
		logger.Log.Fatal("migrate schema", zap.Error(err))
	}

	voucherRepo := repository.NewVoucherRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	campaignCache := cache.NewCampaignCache(rdb, voucherRepo, cfg.Seckill.CacheTTL)
	idGen := idgen.New(rdb)
	persister := service.NewOrderPersister(db, rdb, orderRepo, cfg.Seckill.QueueSize, cfg.Seckill.LockTTL)
	stopPersister := persister.Start()

	seckillService := service.NewSeckillService(rdb, voucherRepo, orderRepo, campaignCache, idGen, persister)

	router := api.NewRouter(handler.New(seckillService), cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Log.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown", zap.Error(err))
	}
	if err := stopPersister(shutdownCtx); err != nil {
		logger.Log.Error("persister shutdown", zap.Error(err))
	}
	logger.Log.Info("server exit")
}
