package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/seckill-go/internal/cache"
	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/pkg/idgen"
	"github.com/d60-Lab/seckill-go/pkg/logger"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrCampaignNotActive = errors.New("campaign not active")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicatePurchase = errors.New("duplicate purchase")
)

// SeckillService 秒杀服务
type SeckillService interface {
	// CreateCampaign 创建秒杀活动并预热 redis 库存
	CreateCampaign(ctx context.Context, voucher *model.SeckillVoucher) error

	// GetCampaign 查询秒杀活动
	GetCampaign(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error)

	// PlaceOrder 下单。返回订单ID；订单落库是异步的，
	// 返回成功即表示抢购成功
	PlaceOrder(ctx context.Context, voucherID, userID int64) (int64, error)

	// GetOrder 根据订单ID查询已落库的订单
	GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error)
}

type seckillService struct {
	client      *redis.Client
	voucherRepo repository.VoucherRepository
	orderRepo   repository.OrderRepository
	campaigns   *cache.CampaignCache
	idGen       *idgen.Generator
	persister   *OrderPersister
}

// NewSeckillService 创建秒杀服务
func NewSeckillService(
	client *redis.Client,
	voucherRepo repository.VoucherRepository,
	orderRepo repository.OrderRepository,
	campaigns *cache.CampaignCache,
	idGen *idgen.Generator,
	persister *OrderPersister,
) SeckillService {
	return &seckillService{
		client:      client,
		voucherRepo: voucherRepo,
		orderRepo:   orderRepo,
		campaigns:   campaigns,
		idGen:       idGen,
		persister:   persister,
	}
}

// CreateCampaign 创建秒杀活动：写库、预热 redis 库存、预热活动缓存
func (s *seckillService) CreateCampaign(ctx context.Context, voucher *model.SeckillVoucher) error {
	if voucher.EndTime.Before(voucher.BeginTime) {
		return fmt.Errorf("invalid campaign window: end before begin")
	}
	if voucher.Stock < 0 {
		return fmt.Errorf("invalid campaign stock: %d", voucher.Stock)
	}
	if voucher.VoucherID == 0 {
		id, err := s.idGen.NextID(ctx, "voucher")
		if err != nil {
			return err
		}
		voucher.VoucherID = id
	}

	if err := s.voucherRepo.Create(ctx, voucher); err != nil {
		return err
	}

	// redis 中的库存计数是准入判断的唯一事实来源
	if err := s.client.Set(ctx, stockKey(voucher.VoucherID), voucher.Stock, 0).Err(); err != nil {
		return fmt.Errorf("seed stock for voucher %d: %w", voucher.VoucherID, err)
	}

	if err := s.campaigns.Set(ctx, voucher); err != nil {
		logger.Log.Warn("warm campaign cache failed",
			zap.Int64("voucher_id", voucher.VoucherID), zap.Error(err))
	}
	return nil
}

// GetCampaign 查询秒杀活动
func (s *seckillService) GetCampaign(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	voucher, err := s.campaigns.Get(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, ErrCampaignNotFound
	}
	return voucher, nil
}

// PlaceOrder 下单入口。时间窗口校验在原子脚本之前做，允许少量缓存时差；
// 库存与一人一单的判定完全由准入脚本原子完成。
func (s *seckillService) PlaceOrder(ctx context.Context, voucherID, userID int64) (int64, error) {
	voucher, err := s.campaigns.Get(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	if voucher == nil {
		return 0, ErrCampaignNotFound
	}
	if !voucher.Active(time.Now()) {
		return 0, ErrCampaignNotActive
	}

	res, err := admit(ctx, s.client, voucherID, userID)
	if err != nil {
		return 0, err
	}
	switch res {
	case admitInsufficientStock:
		return 0, ErrInsufficientStock
	case admitDuplicatePurchase:
		return 0, ErrDuplicatePurchase
	}

	orderID, err := s.idGen.NextID(ctx, "order")
	if err != nil {
		// 准入已经成功但拿不到订单ID，该用户的名额已占用
		logger.Log.Error("id generation failed after admission",
			zap.Int64("voucher_id", voucherID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return 0, err
	}

	order := &model.VoucherOrder{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: time.Now(),
	}
	if !s.persister.Enqueue(order) {
		// 队列满：准入已生效，订单不会有落库记录，只能记日志供人工对账
		logger.Log.Error("order queue full, admitted order will not be persisted",
			zap.Int64("order_id", orderID),
			zap.Int64("user_id", userID),
			zap.Int64("voucher_id", voucherID))
	}
	return orderID, nil
}

// GetOrder 根据订单ID查询已落库的订单，未落库时返回 (nil, nil)
func (s *seckillService) GetOrder(ctx context.Context, orderID int64) (*model.VoucherOrder, error) {
	return s.orderRepo.GetByOrderID(ctx, orderID)
}
