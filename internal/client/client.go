// Package client 是 TodoPro API 的 Go 客户端与界面数据层：
// 会话持久化、任务列表视图与统计报表。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrConnectivity 请求未能到达服务器或响应无法读取。
	ErrConnectivity = errors.New("unable to reach the server")
	// ErrUnauthenticated token 缺失、过期或已被吊销，需要重新登录。
	ErrUnauthenticated = errors.New("unauthenticated")
)

// APIError 服务器返回的非 2xx 响应。
type APIError struct {
	Status     int
	Message    string
	Fields     map[string][]string
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return e.Message
}

// Is 使 errors.Is(err, ErrUnauthenticated) 对 401 响应成立。
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

// User 公开的用户资料。
type User struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Task 任务。
type Task struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	IsCompleted bool       `json:"is_completed"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	UserID      uint       `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuthResponse 注册、登录与刷新的响应。
type AuthResponse struct {
	Message     string `json:"message"`
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Meta 分页信息。
type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// TaskPage 一页任务。
type TaskPage struct {
	Data []Task `json:"data"`
	Meta Meta   `json:"meta"`
}

// ListQuery 列表查询参数，零值字段不发送。
type ListQuery struct {
	Status   string
	Priority string
	Search   string
	Page     int
	PerPage  int
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Priority != "" {
		v.Set("priority", q.Priority)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}

// TaskInput 新建任务。DueDate 接受 RFC 3339 或 YYYY-MM-DD。
type TaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// TaskPatch 部分更新，nil 字段不发送；Clear* 发送 null 以清空。
type TaskPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Priority         *string
	DueDate          *string
	ClearDueDate     bool
	IsCompleted      *bool
}

// MarshalJSON 只输出需要修改的字段。
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.ClearDescription {
		body["description"] = nil
	} else if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Priority != nil {
		body["priority"] = *p.Priority
	}
	if p.ClearDueDate {
		body["due_date"] = nil
	} else if p.DueDate != nil {
		body["due_date"] = *p.DueDate
	}
	if p.IsCompleted != nil {
		body["is_completed"] = *p.IsCompleted
	}
	return json.Marshal(body)
}

// Client 调用 TodoPro REST API。
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option 配置 Client。
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken 设置初始 bearer token。
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New 创建客户端，baseURL 形如 http://localhost:8000。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken 替换当前 token，空串表示未登录。
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token 返回当前 token。
func (c *Client) Token() string {
	return c.token
}

// Register 注册新用户。
func (c *Client) Register(ctx context.Context, name, email, password, confirmation string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{
		"name":                  name,
		"email":                 email,
		"password":              password,
		"password_confirmation": confirmation,
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login 登录。
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout 吊销当前 token。
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Refresh 换取新 token。
func (c *Client) Refresh(ctx context.Context) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me 返回当前用户。
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListTasks 获取一页任务。
func (c *Client) ListTasks(ctx context.Context, q ListQuery) (*TaskPage, error) {
	path := "/tasks"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out TaskPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type taskEnvelope struct {
	Message string `json:"message"`
	Data    Task   `json:"data"`
}

// GetTask 获取单个任务。
func (c *Client) GetTask(ctx context.Context, id uint) (*Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// CreateTask 创建任务。
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// UpdateTask 部分更新任务。
func (c *Client) UpdateTask(ctx context.Context, id uint, patch TaskPatch) (*Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPut, taskPath(id, ""), patch, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteTask 删除任务。
func (c *Client) DeleteTask(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, taskPath(id, ""), nil, nil)
}

// ToggleTask 翻转完成状态。
func (c *Client) ToggleTask(ctx context.Context, id uint) (*Task, error) {
	var out taskEnvelope
	if err := c.do(ctx, http.MethodPatch, taskPath(id, "/toggle"), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func taskPath(id uint, suffix string) string {
	return "/tasks/" + strconv.FormatUint(uint64(id), 10) + suffix
}

type errorBody struct {
	Error      string              `json:"error"`
	Message    string              `json:"message"`
	Errors     map[string][]string `json:"errors"`
	RetryAfter int                 `json:"retry_after"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrConnectivity, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = eb.Error
			if apiErr.Message == "" {
				apiErr.Message = eb.Message
			}
			apiErr.Fields = eb.Errors
			apiErr.RetryAfter = eb.RetryAfter
		}
		if apiErr.RetryAfter == 0 {
			apiErr.RetryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrConnectivity, err)
	}
	return nil
}
