// Package scheduler 运行服务端的周期性维护任务。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pruner 清理过期数据并返回删除数量。
type Pruner interface {
	PruneExpiredTokens(ctx context.Context) (int64, error)
}

// Claimer 在多实例之间认领一次执行，返回 false 表示已被其他实例认领。
// 执行失败时 Release 放弃认领，让其他实例在同一窗口内重试。
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Scheduler 按固定间隔清理过期 access token。
type Scheduler struct {
	pruner   Pruner
	claimer  Claimer
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler 创建维护调度器。
//
// 参数:
//
//	pruner: 过期 token 清理实现
//	logger: 日志记录器
//	interval: 清理间隔（<=0 时使用 1 小时）
func NewScheduler(pruner Pruner, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		timeout:  time.Minute,
		now:      time.Now,
	}
}

// SetClaimer 设置跨实例认领器，同一时间窗口内只有一个实例执行清理。
func (s *Scheduler) SetClaimer(c Claimer) {
	s.claimer = c
}

// Start 在后台启动清理循环，ctx 取消时退出。启动时先执行一次。
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(s.interval)
	s.logger.Info("token janitor started", slog.String("interval", s.interval.String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("token janitor stopped")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Wait 阻塞直到清理循环退出。
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop 取消清理循环并等待正在执行的清理结束，超时返回错误。
func (s *Scheduler) Stop(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("token janitor stop timeout after %s", timeout)
	}
}

// RunOnce 执行一次清理，panic 会被恢复并记录。
func (s *Scheduler) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("PANIC in token janitor", slog.Any("panic", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var claimed string
	if s.claimer != nil {
		key := fmt.Sprintf("token-prune:%d", s.now().Truncate(s.interval).Unix())
		ok, err := s.claimer.Claim(runCtx, key)
		switch {
		case err != nil:
			s.logger.Warn("token janitor claim failed, pruning anyway", slog.String("error", err.Error()))
		case !ok:
			s.logger.Debug("token janitor skipped, claimed elsewhere", slog.String("key", key))
			return
		default:
			claimed = key
		}
	}

	count, err := s.pruner.PruneExpiredTokens(runCtx)
	if err != nil {
		s.logger.Error("token janitor failed", slog.String("error", err.Error()))
		if claimed != "" {
			if err := s.claimer.Release(context.WithoutCancel(runCtx), claimed); err != nil {
				s.logger.Warn("token janitor release failed", slog.String("error", err.Error()))
			}
		}
		return
	}
	if count > 0 {
		s.logger.Info("expired tokens pruned", slog.Int64("count", count))
	}
}
