package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/model"
)

// OrderRepository 秒杀订单仓储接口
type OrderRepository interface {
	// Create 创建订单
	Create(ctx context.Context, order *model.VoucherOrder) error

	// GetByOrderID 根据订单ID查询订单
	GetByOrderID(ctx context.Context, orderID int64) (*model.VoucherOrder, error)

	// CountByUserAndVoucher 统计某用户在某券下的订单数量
	CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error)

	// Count 统计订单总量
	Count(ctx context.Context) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 创建订单
func (r *orderRepository) Create(ctx context.Context, order *model.VoucherOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByOrderID 根据订单ID查询订单，不存在时返回 (nil, nil)
func (r *orderRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.VoucherOrder, error) {
	var order model.VoucherOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// CountByUserAndVoucher 统计某用户在某券下的订单数量
func (r *orderRepository) CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&count).Error
	return count, err
}

// Count 统计订单总量
func (r *orderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VoucherOrder{}).Count(&count).Error
	return count, err
}
