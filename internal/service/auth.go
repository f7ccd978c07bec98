// Package service 实现认证与任务业务逻辑，向 API 层返回 apperr 分类错误。
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"todopro/internal/model"
	"todopro/internal/pkg/apperr"
	"todopro/internal/pkg/metrics"
	"todopro/internal/pkg/ratelimit"
	"todopro/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// AuthLimits 注册与登录的限流参数。
type AuthLimits struct {
	RegisterAttempts int64         // 窗口内允许的注册尝试次数
	LoginAttempts    int64         // 窗口内允许的登录失败次数
	Window           time.Duration // 固定窗口长度
}

// WelcomeQueue 接收新用户的欢迎邮件任务。
type WelcomeQueue interface {
	Welcome(user model.User) bool
}

// AuthService 负责注册、登录与 token 生命周期。
type AuthService struct {
	store   *store.Store
	tokens  *TokenIssuer
	limiter *ratelimit.Limiter
	limits  AuthLimits
	welcome WelcomeQueue
	logger  *slog.Logger
	now     func() time.Time
	cost    int
}

// NewAuthService 创建认证服务，welcome 可为 nil。
func NewAuthService(st *store.Store, tokens *TokenIssuer, limiter *ratelimit.Limiter, limits AuthLimits, welcome WelcomeQueue, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:   st,
		tokens:  tokens,
		limiter: limiter,
		limits:  limits,
		welcome: welcome,
		logger:  logger,
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
}

// SetBcryptCost 调整哈希强度，测试中用 bcrypt.MinCost 加速。
func (s *AuthService) SetBcryptCost(cost int) {
	s.cost = cost
}

// RegisterInput 注册参数，调用方需已完成格式校验与规范化。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// AuthResult 登录或注册成功后的用户与 token。
type AuthResult struct {
	User      *model.User
	Token     string
	ExpiresIn int64 // 秒
}

// Principal 已认证的请求主体。
type Principal struct {
	User    *model.User
	TokenID string
}

// Register 创建已验证用户并签发 token。
//
// 同一客户端地址在窗口内超过 RegisterAttempts 次时返回 RateLimited；
// 邮箱已存在返回 email 字段的 Validation 错误。
func (s *AuthService) Register(ctx context.Context, in RegisterInput, clientIP string) (*AuthResult, error) {
	key := "register:" + clientIP
	if err := s.checkLimit(ctx, "register", key, s.limits.RegisterAttempts); err != nil {
		return nil, err
	}
	s.hit(ctx, key)

	taken, err := s.store.Users.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, s.unexpected("Registration failed. Please try again.", err, slog.String("email", in.Email))
	}
	if taken {
		metrics.AuthEventsTotal.WithLabelValues("register", "rejected").Inc()
		return nil, emailTaken()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, s.unexpected("Registration failed. Please try again.", err)
	}
	verifiedAt := s.now()
	user := &model.User{
		Name:            in.Name,
		Email:           in.Email,
		Password:        string(hash),
		EmailVerifiedAt: &verifiedAt,
	}

	var bearer string
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		bearer, err = s.issue(ctx, tx, user.ID)
		return err
	})
	if errors.Is(err, store.ErrEmailTaken) {
		metrics.AuthEventsTotal.WithLabelValues("register", "rejected").Inc()
		return nil, emailTaken()
	}
	if err != nil {
		return nil, s.unexpected("Registration failed. Please try again.", err, slog.String("email", in.Email))
	}

	if s.welcome != nil && !s.welcome.Welcome(*user) {
		s.logger.Warn("welcome mail not queued", slog.Uint64("user_id", uint64(user.ID)))
	}
	metrics.AuthEventsTotal.WithLabelValues("register", "success").Inc()
	s.logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)), slog.String("client_ip", clientIP))
	return s.result(user, bearer), nil
}

// Login 校验凭据，成功后吊销该用户已有 token 并签发新 token。
//
// 限流检查先于凭据校验，只有失败的尝试会计数，成功后计数清零。
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*AuthResult, error) {
	key := "login:" + clientIP
	if err := s.checkLimit(ctx, "login", key, s.limits.LoginAttempts); err != nil {
		return nil, err
	}

	user, err := s.store.Users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, s.unexpected("Login failed. Please try again.", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		s.hit(ctx, key)
		metrics.AuthEventsTotal.WithLabelValues("login", "failed").Inc()
		s.logger.Warn("failed login attempt", slog.String("email", email), slog.String("client_ip", clientIP))
		return nil, apperr.ErrInvalidCredentials
	}

	if err := s.limiter.Clear(ctx, key); err != nil {
		s.logger.Warn("ratelimit clear failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	var bearer string
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.Tokens.DeleteForUser(ctx, user.ID); err != nil {
			return err
		}
		bearer, err = s.issue(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, s.unexpected("Login failed. Please try again.", err, slog.Uint64("user_id", uint64(user.ID)))
	}

	metrics.AuthEventsTotal.WithLabelValues("login", "success").Inc()
	s.logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)), slog.String("client_ip", clientIP))
	return s.result(user, bearer), nil
}

// Logout 吊销当前 token。
func (s *AuthService) Logout(ctx context.Context, p *Principal) error {
	err := s.store.Tokens.Delete(ctx, p.TokenID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrUnauthenticated
	}
	if err != nil {
		return s.unexpected("Logout failed. Please try again.", err, slog.Uint64("user_id", uint64(p.User.ID)))
	}
	metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	s.logger.Info("user logged out", slog.Uint64("user_id", uint64(p.User.ID)))
	return nil
}

// Refresh 在同一事务中吊销当前 token 并签发新 token。
func (s *AuthService) Refresh(ctx context.Context, p *Principal) (*AuthResult, error) {
	var bearer string
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Tokens.Delete(ctx, p.TokenID); err != nil {
			return err
		}
		var err error
		bearer, err = s.issue(ctx, tx, p.User.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, s.unexpected("Token refresh failed. Please try again.", err, slog.Uint64("user_id", uint64(p.User.ID)))
	}
	metrics.AuthEventsTotal.WithLabelValues("refresh", "success").Inc()
	return s.result(p.User, bearer), nil
}

// Authenticate 解析 bearer token 并加载用户。
//
// 签名、过期、服务端记录及哈希全部匹配才视为有效，随后更新 last_used_at。
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	if bearer == "" {
		return nil, apperr.ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(bearer)
	if err != nil {
		return nil, apperr.ErrUnauthenticated
	}

	row, err := s.store.Tokens.FindByID(ctx, claims.TokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, s.unexpected("", err)
	}
	if row.UserID != claims.UserID || !s.now().Before(row.ExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(row.TokenHash), []byte(HashToken(bearer))) != 1 {
		return nil, apperr.ErrUnauthenticated
	}

	user, err := s.store.Users.FindByID(ctx, row.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, s.unexpected("", err)
	}

	if err := s.store.Tokens.Touch(ctx, row.ID, s.now()); err != nil {
		s.logger.Warn("token touch failed", slog.String("token_id", row.ID), slog.String("error", err.Error()))
	}
	return &Principal{User: user, TokenID: row.ID}, nil
}

// Me 返回用户最新资料。
func (s *AuthService) Me(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.store.Users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, s.unexpected("", err)
	}
	return user, nil
}

// PruneExpiredTokens 删除已过期的 token 记录。
func (s *AuthService) PruneExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.store.Tokens.PruneExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	metrics.TokensPrunedTotal.Add(float64(n))
	return n, nil
}

func (s *AuthService) issue(ctx context.Context, tx *store.Store, userID uint) (string, error) {
	bearer, row, err := s.tokens.Issue(userID)
	if err != nil {
		return "", err
	}
	if err := tx.Tokens.Create(ctx, row); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return bearer, nil
}

func (s *AuthService) result(user *model.User, bearer string) *AuthResult {
	return &AuthResult{
		User:      user,
		Token:     bearer,
		ExpiresIn: int64(s.tokens.TTL() / time.Second),
	}
}

// checkLimit 计数存储不可用时放行并记录告警。
func (s *AuthService) checkLimit(ctx context.Context, action, key string, max int64) error {
	blocked, wait, err := s.limiter.TooManyAttempts(ctx, key, max)
	if err != nil {
		s.logger.Warn("ratelimit check failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if !blocked {
		return nil
	}
	metrics.RateLimitRejectedTotal.WithLabelValues(action).Inc()
	seconds := int((wait + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	s.logger.Warn("auth rate limited", slog.String("action", action), slog.String("key", key), slog.Int("retry_after", seconds))
	msg := fmt.Sprintf("Too many %s attempts. Please try again in %d seconds.", action, seconds)
	return apperr.RateLimited(msg, seconds)
}

func (s *AuthService) hit(ctx context.Context, key string) {
	if _, err := s.limiter.Hit(ctx, key, s.limits.Window); err != nil {
		s.logger.Warn("ratelimit hit failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *AuthService) unexpected(msg string, err error, attrs ...any) error {
	s.logger.Error("auth operation failed", append([]any{slog.String("error", err.Error())}, attrs...)...)
	return apperr.Unexpected(msg, err)
}

func emailTaken() error {
	return apperr.Validation("The email has already been taken.", map[string][]string{
		"email": {"The email has already been taken."},
	})
}
