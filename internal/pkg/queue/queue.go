package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Handler 处理单个任务。
type Handler[T any] func(ctx context.Context, item T) error

// Pool 有界内存队列加固定数量的 worker。
//
// 入队不阻塞：队列满时直接丢弃并计数。关闭后等待已入队任务处理完毕。
type Pool[T any] struct {
	logger  *slog.Logger
	workers int
	items   chan T
	handle  Handler[T]

	// OnDepth 在入队与出队后回调当前积压数，用于上报指标。
	OnDepth func(depth int)

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	stats poolStats
}

type poolStats struct {
	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 统计快照。
type Stats struct {
	Enqueued  int64 // 入队数
	Succeeded int64 // 成功数
	Failed    int64 // 失败数
	Dropped   int64 // 队列满或已关闭时丢弃的数量
	Panics    int64 // 处理函数 panic 次数
}

// NewPool 创建队列。
//
// 参数:
//   - logger: 日志记录器
//   - workers: worker 数量（至少为 1）
//   - capacity: 队列容量（至少为 1）
//   - handle: 任务处理函数
func NewPool[T any](logger *slog.Logger, workers, capacity int, handle Handler[T]) *Pool[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool[T]{
		logger:  logger,
		workers: workers,
		items:   make(chan T, capacity),
		handle:  handle,
	}
}

// Start 启动 worker，ctx 取消后 worker 在当前任务结束时退出。
func (p *Pool[T]) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.items:
			if !ok {
				return
			}
			p.reportDepth()
			p.run(ctx, item, id)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, item T, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			p.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := p.handle(ctx, item); err != nil {
		p.stats.failed.Add(1)
		p.logger.Warn("job failed",
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))
		return
	}
	p.stats.succeeded.Add(1)
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false。
func (p *Pool[T]) Enqueue(item T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.stats.dropped.Add(1)
		p.logger.Warn("queue is closed, reject job")
		return false
	}
	select {
	case p.items <- item:
		p.stats.enqueued.Add(1)
		p.reportDepth()
		return true
	default:
		p.stats.dropped.Add(1)
		p.logger.Warn("queue full, drop job",
			slog.Int("capacity", cap(p.items)),
			slog.Int("pending", len(p.items)))
		return false
	}
}

// Shutdown 拒绝新任务并等待 worker 退出，超时返回错误。
func (p *Pool[T]) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.items)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Enqueued:  p.stats.enqueued.Load(),
		Succeeded: p.stats.succeeded.Load(),
		Failed:    p.stats.failed.Load(),
		Dropped:   p.stats.dropped.Load(),
		Panics:    p.stats.panics.Load(),
	}
}

// Len 返回积压任务数。
func (p *Pool[T]) Len() int {
	return len(p.items)
}

func (p *Pool[T]) reportDepth() {
	if p.OnDepth != nil {
		p.OnDepth(len(p.items))
	}
}
