// Package dedup 用 Redis SETNX 保证同一个键在 TTL 内只被认领一次，
// 用于多实例部署下的周期任务去重。
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "todopro:claim:"

// Guard 基于 Redis 的一次性认领。
type Guard struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewGuard 创建 Guard，ttl<=0 时使用 1 小时。
func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Guard{
		rdb:    rdb,
		ttl:    ttl,
		prefix: defaultPrefix,
	}
}

// Claim 认领 key。返回 true 表示本次调用拿到了认领权，
// false 表示 TTL 内已被其他实例认领。Redis 未配置时总是返回 true。
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	if g == nil || g.rdb == nil || key == "" {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, g.key(key), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Release 放弃认领，使 key 可被再次认领。
func (g *Guard) Release(ctx context.Context, key string) error {
	if g == nil || g.rdb == nil || key == "" {
		return nil
	}
	if err := g.rdb.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func (g *Guard) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return g.prefix + hex.EncodeToString(sum[:8])
}
