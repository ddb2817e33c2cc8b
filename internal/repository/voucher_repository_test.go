package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/seckill-go/internal/model"
)

func setupRepoDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}))
	return db
}

func TestVoucherDecrementStockGuardsZero(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewVoucherRepository(db)
	ctx := context.Background()

	voucher := &model.SeckillVoucher{
		VoucherID: 1,
		Title:     "t",
		Stock:     2,
		BeginTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, voucher))

	ok, err := repo.DecrementStock(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.DecrementStock(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// 库存为 0 后条件更新不再生效
	ok, err = repo.DecrementStock(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Stock)
}

func TestVoucherGetByIDNotFound(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewVoucherRepository(db)

	got, err := repo.GetByID(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, got)
}
