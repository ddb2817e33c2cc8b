package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	seckillStockKeyPrefix = "seckill:stock:"
	seckillOrderKeyPrefix = "seckill:order:"
)

// 准入结果，与 lua 脚本返回值一一对应
const (
	admitOK                = 0
	admitInsufficientStock = 1
	admitDuplicatePurchase = 2
)

// admissionScript 在 redis 内一次性完成 库存校验 + 一人一单校验 + 扣减 + 记名。
// KEYS[1] 库存计数，KEYS[2] 已购用户集合，ARGV[1] 用户ID。
// 脚本整体原子执行，并发请求不会观察到中间状态，
// 这里是全部下单请求唯一的串行化点。
var admissionScript = redis.NewScript(`
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
    return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
    return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`)

func stockKey(voucherID int64) string {
	return fmt.Sprintf("%s%d", seckillStockKeyPrefix, voucherID)
}

func orderSetKey(voucherID int64) string {
	return fmt.Sprintf("%s%d", seckillOrderKeyPrefix, voucherID)
}

// admit 执行准入脚本。redis 不可用时返回错误且不产生任何状态变更。
func admit(ctx context.Context, client *redis.Client, voucherID, userID int64) (int64, error) {
	res, err := admissionScript.Run(ctx, client,
		[]string{stockKey(voucherID), orderSetKey(voucherID)},
		userID,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("admission script voucher %d: %w", voucherID, err)
	}
	return res, nil
}
