// Package ratelimit 提供按 key 计数的固定窗口限流。
//
// 计数器在首次命中时开始计时，窗口结束后整体过期；同一 key 的并发命中是原子的。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 固定窗口计数器存储。
type Store interface {
	// Hit 计数加一并返回窗口内的累计次数，首次命中时设置窗口过期时间。
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	// Attempts 返回当前窗口内的次数，窗口不存在时为 0。
	Attempts(ctx context.Context, key string) (int64, error)
	// AvailableIn 返回窗口剩余时间。
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
	// Clear 清除计数。
	Clear(ctx context.Context, key string) error
}

// Limiter 在 Store 之上提供判定逻辑。
type Limiter struct {
	store  Store
	logger *slog.Logger
}

// NewLimiter 创建限流器，logger 为 nil 时使用 slog.Default()。
func NewLimiter(store Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, logger: logger}
}

// TooManyAttempts 判断 key 在当前窗口内是否已达到 max 次。
// 若已超限，同时返回距离窗口结束的时间。
func (l *Limiter) TooManyAttempts(ctx context.Context, key string, max int64) (bool, time.Duration, error) {
	attempts, err := l.store.Attempts(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if attempts < max {
		return false, 0, nil
	}
	wait, err := l.store.AvailableIn(ctx, key)
	if err != nil {
		return true, 0, err
	}
	return true, wait, nil
}

// Hit 记录一次尝试。
func (l *Limiter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return l.store.Hit(ctx, key, window)
}

// Clear 重置 key 的计数。
func (l *Limiter) Clear(ctx context.Context, key string) error {
	return l.store.Clear(ctx, key)
}

// Allow 记录一次请求并判断是否在 max 次以内，超限时返回剩余等待时间。
func (l *Limiter) Allow(ctx context.Context, key string, max int64, window time.Duration) (bool, time.Duration, error) {
	count, err := l.store.Hit(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	if count <= max {
		return true, 0, nil
	}
	wait, err := l.store.AvailableIn(ctx, key)
	if err != nil {
		l.logger.Warn("ratelimit ttl lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		wait = window
	}
	return false, wait, nil
}

const fixedWindowLua = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

// RedisStore 基于 Redis 的计数器，可在多实例间共享。
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisStore 创建 Redis 计数器，prefix 为空时使用默认前缀。
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "todopro:ratelimit:"
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		script: redis.NewScript(fixedWindowLua),
	}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	res, err := s.script.Run(ctx, s.rdb, []string{s.prefix + key}, ms).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit eval: %w", err)
	}
	return toInt64(res), nil
}

func (s *RedisStore) Attempts(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, s.prefix+key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit get: %w", err)
	}
	return n, nil
}

func (s *RedisStore) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, s.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit pttl: %w", err)
	}
	// -1/-2 表示无过期或不存在。
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit del: %w", err)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore 进程内计数器，用于未配置 Redis 的单实例部署和测试。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore 创建进程内计数器。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// live 返回未过期的条目，过期条目顺便删除。调用方需持有锁。
func (s *MemoryStore) live(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &memoryEntry{expiresAt: s.now().Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) Attempts(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		return e.count, nil
	}
	return 0, nil
}

func (s *MemoryStore) AvailableIn(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		return e.expiresAt.Sub(s.now()), nil
	}
	return 0, nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
