package model

import (
	"time"
)

// SeckillVoucher 秒杀券（活动）模型
type SeckillVoucher struct {
	VoucherID int64     `json:"voucher_id" gorm:"column:voucher_id;primaryKey;autoIncrement:false"`
	Title     string    `json:"title" gorm:"size:128;not null"`
	Stock     int64     `json:"stock" gorm:"not null"` // 剩余库存，活动期间只减不增
	BeginTime time.Time `json:"begin_time" gorm:"index;not null"`
	EndTime   time.Time `json:"end_time" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName 指定表名
func (SeckillVoucher) TableName() string {
	return "seckill_vouchers"
}

// Active 判断当前时间是否在活动窗口内
func (v *SeckillVoucher) Active(now time.Time) bool {
	return !now.Before(v.BeginTime) && !now.After(v.EndTime)
}
