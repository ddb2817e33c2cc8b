package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/model"
)

// VoucherRepository 秒杀券仓储接口
type VoucherRepository interface {
	// Create 创建秒杀券
	Create(ctx context.Context, voucher *model.SeckillVoucher) error

	// GetByID 根据券ID查询秒杀券
	GetByID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error)

	// DecrementStock 扣减库存，stock > 0 时才生效，返回是否扣减成功
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)
}

type voucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository 创建秒杀券仓储
func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

// Create 创建秒杀券
func (r *voucherRepository) Create(ctx context.Context, voucher *model.SeckillVoucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

// GetByID 根据券ID查询秒杀券，不存在时返回 (nil, nil)
func (r *voucherRepository) GetByID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var voucher model.SeckillVoucher
	err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// DecrementStock 扣减库存。条件更新 stock > 0，防止库存为负
func (r *voucherRepository) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.SeckillVoucher{}).
		Where("voucher_id = ? AND stock > 0", voucherID).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
