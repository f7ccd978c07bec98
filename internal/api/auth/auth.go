package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todopro/internal/api/middleware"
	"todopro/internal/api/response"
	"todopro/internal/model"
	"todopro/internal/pkg/apperr"
	"todopro/internal/pkg/validation"
	"todopro/internal/service"

	"github.com/gin-gonic/gin"
)

// Service 认证处理器依赖的业务接口。
type Service interface {
	Register(ctx context.Context, in service.RegisterInput, clientIP string) (*service.AuthResult, error)
	Login(ctx context.Context, email, password, clientIP string) (*service.AuthResult, error)
	Logout(ctx context.Context, p *service.Principal) error
	Refresh(ctx context.Context, p *service.Principal) (*service.AuthResult, error)
	Me(ctx context.Context, userID uint) (*model.User, error)
}

// Handler 提供注册、登录与 token 管理接口。
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type registerRequest struct {
	Name                 string `json:"name" binding:"required,min=2,max=255"`
	Email                string `json:"email" binding:"required,email,max=255"`
	Password             string `json:"password" binding:"required,min=8,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (r *registerRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (r *loginRequest) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userResponse 对外公开的用户字段。
type userResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

type authResponse struct {
	Message     string        `json:"message,omitempty"`
	User        *userResponse `json:"user,omitempty"`
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
}

func newAuthResponse(message string, res *service.AuthResult, withUser bool) authResponse {
	out := authResponse{
		Message:     message,
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresIn:   res.ExpiresIn,
	}
	if withUser {
		u := newUserResponse(res.User)
		out.User = &u
	}
	return out
}

// Register 创建新用户并返回 token。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := validation.BindJSON(c.Request.Body, &req); err != nil {
		response.Error(c, h.logger, err)
		return
	}

	res, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, c.ClientIP())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newAuthResponse("User registered successfully", res, true))
}

// Login 校验用户并返回新 token，旧 token 全部失效。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := validation.BindJSON(c.Request.Body, &req); err != nil {
		response.Error(c, h.logger, err)
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse("Login successful", res, true))
}

// Logout 吊销当前 token。
func (h *Handler) Logout(c *gin.Context) {
	p := middleware.Principal(c)
	if p == nil {
		response.Error(c, h.logger, apperr.ErrUnauthenticated)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), p); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Refresh 用当前 token 换取新 token。
func (h *Handler) Refresh(c *gin.Context) {
	p := middleware.Principal(c)
	if p == nil {
		response.Error(c, h.logger, apperr.ErrUnauthenticated)
		return
	}
	res, err := h.svc.Refresh(c.Request.Context(), p)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse("", res, false))
}

// Me 返回当前用户。
func (h *Handler) Me(c *gin.Context) {
	p := middleware.Principal(c)
	if p == nil {
		response.Error(c, h.logger, apperr.ErrUnauthenticated)
		return
	}
	user, err := h.svc.Me(c.Request.Context(), p.User.ID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newUserResponse(user)})
}
