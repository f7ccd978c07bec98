package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// sessionState 会话文件内容。
type sessionState struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Session 保存当前登录状态，并同步到本地会话文件。
type Session struct {
	client *Client
	path   string

	mu    sync.RWMutex
	state sessionState
}

// DefaultSessionPath 返回 $XDG_CONFIG_HOME/todopro/session.json。
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "todopro", "session.json"), nil
}

// OpenSession 读取会话文件并把 token 装入 client；文件不存在视为未登录。
func OpenSession(c *Client, path string) (*Session, error) {
	s := &Session{client: c, path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read session: %w", err)
	default:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", path, err)
		}
	}
	c.SetToken(s.state.Token)
	return s, nil
}

// Client 返回携带当前 token 的 API 客户端。
func (s *Session) Client() *Client {
	return s.client
}

// User 返回已登录用户，未登录时为 nil。
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// Authenticated 是否持有 token。
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token != ""
}

// SignIn 登录；失败时保留原有状态。
func (s *Session) SignIn(ctx context.Context, email, password string) (*User, error) {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

// SignUp 注册并登录；失败时保留原有状态。
func (s *Session) SignUp(ctx context.Context, name, email, password, confirmation string) (*User, error) {
	resp, err := s.client.Register(ctx, name, email, password, confirmation)
	if err != nil {
		return nil, err
	}
	return s.adopt(resp)
}

// SignOut 尽力吊销服务端 token，然后清空本地状态。
// 返回的错误只来自删除会话文件。
func (s *Session) SignOut(ctx context.Context) error {
	if s.Authenticated() {
		_ = s.client.Logout(ctx)
	}
	s.mu.Lock()
	s.state = sessionState{}
	s.mu.Unlock()
	s.client.SetToken("")

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Refresh 查询当前用户并更新缓存的资料。
func (s *Session) Refresh(ctx context.Context) (*User, error) {
	user, err := s.client.Me(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.state.User = user
	state := s.state
	s.mu.Unlock()
	return user, s.save(state)
}

func (s *Session) adopt(resp *AuthResponse) (*User, error) {
	next := sessionState{Token: resp.AccessToken, User: resp.User}
	if err := s.save(next); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.client.SetToken(next.Token)
	return next.User, nil
}

func (s *Session) save(state sessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
