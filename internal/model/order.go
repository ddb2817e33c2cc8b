package model

import (
	"time"
)

// VoucherOrder 秒杀订单模型。
// (user_id, voucher_id) 唯一索引兜底保证一人一单。
type VoucherOrder struct {
	OrderID   int64     `json:"order_id" gorm:"column:order_id;primaryKey;autoIncrement:false"`
	UserID    int64     `json:"user_id" gorm:"uniqueIndex:idx_user_voucher;not null"`
	VoucherID int64     `json:"voucher_id" gorm:"uniqueIndex:idx_user_voucher;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index;not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (VoucherOrder) TableName() string {
	return "voucher_orders"
}
