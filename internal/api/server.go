package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"todopro/internal/api/auth"
	"todopro/internal/api/middleware"
	"todopro/internal/api/scheduler"
	"todopro/internal/config"
	"todopro/internal/pkg/dedup"
	"todopro/internal/pkg/metrics"
	"todopro/internal/pkg/notify"
	"todopro/internal/pkg/ratelimit"
	"todopro/internal/pkg/validation"
	"todopro/internal/service"
	"todopro/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库存储、可选的 Redis 客户端、业务服务以及 Gin 路由引擎。
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	rdb     *redis.Client
	router  *gin.Engine
	limiter *ratelimit.Limiter
	authSvc *service.AuthService
	tasks   *service.TaskService
	auth    *auth.Handler
	sched   *scheduler.Scheduler
	outbox  *notify.Outbox
}

// Deps 组装 Server 的依赖，Redis 与 Outbox 可为空。
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
	Redis  *redis.Client
	Outbox *notify.Outbox
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 按配置连接 Redis（未配置时限流计数使用进程内存）
// 3. 按 SMTP 配置创建欢迎邮件发件箱
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(db)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	var outbox *notify.Outbox
	mailer := notify.NewEmailNotifier(cfg.Email, logger)
	if mailer.Configured() {
		outbox = notify.NewOutbox(mailer, logger, cfg.App.MailWorkers, cfg.App.MailQueueCapacity)
	} else {
		logger.Info("smtp not configured, welcome mail disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	return New(Deps{Config: cfg, Logger: logger, Store: st, Redis: rdb, Outbox: outbox}), nil
}

// New 使用已创建的依赖构建 Server，不做任何网络连接。
func New(d Deps) *Server {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics.InitMetrics()
	validation.Setup()

	var counters ratelimit.Store
	if d.Redis != nil {
		counters = ratelimit.NewRedisStore(d.Redis, "")
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(counters, logger)

	var welcome service.WelcomeQueue
	if d.Outbox != nil {
		welcome = d.Outbox
	}
	authSvc := service.NewAuthService(
		d.Store,
		service.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL),
		limiter,
		service.AuthLimits{
			RegisterAttempts: int64(cfg.RateLimit.RegisterAttempts),
			LoginAttempts:    int64(cfg.RateLimit.LoginAttempts),
			Window:           cfg.RateLimit.Window,
		},
		welcome,
		logger,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   d.Store,
		rdb:     d.Redis,
		router:  r,
		limiter: limiter,
		authSvc: authSvc,
		tasks:   service.NewTaskService(d.Store, logger),
		auth:    auth.NewHandler(authSvc, logger),
		sched:   scheduler.NewScheduler(authSvc, logger, cfg.App.TokenPruneInterval),
		outbox:  d.Outbox,
	}
	if d.Redis != nil {
		s.sched.SetClaimer(dedup.NewGuard(d.Redis, cfg.App.TokenPruneInterval))
	}
	s.registerRoutes()
	return s
}

// AuthService 返回认证服务。
func (s *Server) AuthService() *service.AuthService {
	return s.authSvc
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartBackground 启动 token 清理调度器与邮件发送 worker。
func (s *Server) StartBackground(ctx context.Context) {
	s.sched.Start(ctx)
	if s.outbox != nil {
		s.outbox.Start(ctx)
	}
}

// Close 停止后台任务并等待其结束，然后关闭数据库与缓存连接。
func (s *Server) Close(timeout time.Duration) error {
	var errs []error
	if err := s.sched.Stop(timeout); err != nil {
		errs = append(errs, err)
	}
	if s.outbox != nil {
		if err := s.outbox.Shutdown(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/")
	api.Use(middleware.Throttle(s.limiter, s.cfg.RateLimit.PerMinute, s.logger))

	api.POST("/auth/register", s.auth.Register)
	api.POST("/auth/login", s.auth.Login)

	authed := api.Group("/")
	authed.Use(middleware.AuthMiddleware(s.authSvc, s.logger))
	authed.POST("/auth/logout", s.auth.Logout)
	authed.POST("/auth/refresh", s.auth.Refresh)
	authed.GET("/auth/me", s.auth.Me)

	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.PATCH("/tasks/:id/toggle", s.handleToggleTask)
}
