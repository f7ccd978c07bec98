package notify

import (
	"context"
	"log/slog"
	"time"

	"todopro/internal/model"
	"todopro/internal/pkg/metrics"
	"todopro/internal/pkg/queue"
)

// Notifier 定义用户通知接口。
type Notifier interface {
	// SendWelcome 向新注册用户发送欢迎邮件。
	SendWelcome(ctx context.Context, user model.User) error
}

// Outbox 将通知放入后台队列异步发送，不阻塞请求。
type Outbox struct {
	pool   *queue.Pool[model.User]
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewOutbox 创建通知发件箱。
//
// 参数:
//   - notifier: 实际发送者
//   - workers: 发送 worker 数
//   - capacity: 队列容量，满时丢弃
func NewOutbox(notifier Notifier, logger *slog.Logger, workers, capacity int) *Outbox {
	pool := queue.NewPool(logger, workers, capacity, func(ctx context.Context, user model.User) error {
		return notifier.SendWelcome(ctx, user)
	})
	pool.OnDepth = func(depth int) { metrics.MailQueueDepth.Set(float64(depth)) }
	return &Outbox{pool: pool, logger: logger}
}

// Start 启动发送 worker。
//
// worker 使用独立于 ctx 取消信号的上下文，进程收到退出信号后仍能由
// Shutdown 发完积压邮件。
func (o *Outbox) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.pool.Start(runCtx)
}

// Welcome 排队发送欢迎邮件，队列满时返回 false。
func (o *Outbox) Welcome(user model.User) bool {
	return o.pool.Enqueue(user)
}

// Shutdown 停止接收并等待积压邮件发送完成，超时后取消仍在发送的邮件。
func (o *Outbox) Shutdown(timeout time.Duration) error {
	err := o.pool.Shutdown(timeout)
	if o.cancel != nil {
		o.cancel()
	}
	return err
}

// Stats 返回队列统计。
func (o *Outbox) Stats() queue.Stats {
	return o.pool.Stats()
}
