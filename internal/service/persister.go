package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/model"
	"github.com/d60-Lab/seckill-go/internal/repository"
	"github.com/d60-Lab/seckill-go/pkg/lock"
	"github.com/d60-Lab/seckill-go/pkg/logger"
)

var errStockDiverged = errors.New("durable stock exhausted for admitted order")

const (
	lockRetries      = 3
	lockRetryBackoff = 50 * time.Millisecond
	persistTimeout   = 10 * time.Second
)

// OrderPersister 异步落库器。准入成功的订单先进入有界内存队列，
// 由单个 worker 按 FIFO 逐条落库。单消费者避免在持久层重新引入
// 重复下单竞态；吞吐瓶颈在准入侧，这里不是热点。
type OrderPersister struct {
	db        *gorm.DB
	client    *redis.Client
	orderRepo repository.OrderRepository
	ch        chan *model.VoucherOrder
	lockTTL   time.Duration
}

// NewOrderPersister 创建落库器，queueSize 为队列容量上限
func NewOrderPersister(db *gorm.DB, client *redis.Client, orderRepo repository.OrderRepository, queueSize int, lockTTL time.Duration) *OrderPersister {
	if queueSize <= 0 {
		queueSize = 1 << 20
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &OrderPersister{
		db:        db,
		client:    client,
		orderRepo: orderRepo,
		ch:        make(chan *model.VoucherOrder, queueSize),
		lockTTL:   lockTTL,
	}
}

// Enqueue 非阻塞入队。返回 false 表示队列已满，订单不会被落库——
// 此时准入侧的库存与记名已经生效，属于已知的降级场景，由调用方记录日志。
func (p *OrderPersister) Enqueue(order *model.VoucherOrder) bool {
	select {
	case p.ch <- order:
		return true
	default:
		return false
	}
}

// Pending 返回当前待落库的订单数
func (p *OrderPersister) Pending() int { return len(p.ch) }

// Start 启动唯一的落库 worker，返回停止函数。
// 停止时等待队列自然排空一小段时间。
func (p *OrderPersister) Start() func(context.Context) error {
	stopCh := make(chan struct{})
	go func() {
		for {
			select {
			case order := <-p.ch:
				p.persist(order)
			case <-stopCh:
				// 停止信号后把剩余任务尽量消化掉
				for {
					select {
					case order := <-p.ch:
						p.persist(order)
					default:
						return
					}
				}
			}
		}
	}()
	return func(ctx context.Context) error {
		close(stopCh)
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(p.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

// persist 落库单个订单。任何一步失败都记日志后丢弃该任务（至多一次语义），
// worker 不会因为单个任务失败而退出。
func (p *OrderPersister) persist(order *model.VoucherOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	// 按用户加锁，纵深防御：准入脚本已经保证一人一单，
	// 这里再挡一层，防止非原子旁路或 bug 造成重复落库
	userLock := lock.New(p.client, fmt.Sprintf("order:%d", order.UserID), p.lockTTL)
	acquired := false
	for i := 0; i < lockRetries; i++ {
		ok, err := userLock.TryLock(ctx)
		if err != nil {
			logger.Log.Error("persister lock error, dropping order",
				zap.Int64("order_id", order.OrderID),
				zap.Int64("user_id", order.UserID),
				zap.Error(err))
			return
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(lockRetryBackoff)
	}
	if !acquired {
		logger.Log.Error("persister lock unavailable, dropping order",
			zap.Int64("order_id", order.OrderID),
			zap.Int64("user_id", order.UserID),
			zap.Int64("voucher_id", order.VoucherID))
		return
	}
	defer func() {
		if err := userLock.Unlock(ctx); err != nil {
			logger.Log.Warn("persister unlock failed", zap.Int64("user_id", order.UserID), zap.Error(err))
		}
	}()

	// 幂等复查：已有订单则静默丢弃
	count, err := p.orderRepo.CountByUserAndVoucher(ctx, order.UserID, order.VoucherID)
	if err != nil {
		logger.Log.Error("persister order recheck failed, dropping order",
			zap.Int64("order_id", order.OrderID), zap.Error(err))
		return
	}
	if count > 0 {
		logger.Log.Debug("order already persisted, skipping",
			zap.Int64("user_id", order.UserID),
			zap.Int64("voucher_id", order.VoucherID))
		return
	}

	// 扣减库存 + 写订单放在同一事务里；条件更新 stock > 0 兜底，
	// 行数为 0 说明 redis 与数据库的库存已经不一致
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SeckillVoucher{}).
			Where("voucher_id = ? AND stock > 0", order.VoucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStockDiverged
		}
		return tx.Create(order).Error
	})
	if err != nil {
		if errors.Is(err, errStockDiverged) {
			logger.Log.Warn("stock divergence between redis and db, dropping order",
				zap.Int64("order_id", order.OrderID),
				zap.Int64("user_id", order.UserID),
				zap.Int64("voucher_id", order.VoucherID))
			return
		}
		logger.Log.Error("persist order failed, dropping order",
			zap.Int64("order_id", order.OrderID),
			zap.Int64("user_id", order.UserID),
			zap.Int64("voucher_id", order.VoucherID),
			zap.Error(err))
	}
}
