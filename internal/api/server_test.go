package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"todopro/internal/config"
	"todopro/internal/pkg/logger"
	"todopro/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T, rdb *redis.Client) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.RateLimit.PerMinute = 0
	srv := New(Deps{
		Config: cfg,
		Logger: logger.Discard(),
		Store:  storetest.NewStore(t),
		Redis:  rdb,
	})
	srv.AuthService().SetBcryptCost(bcrypt.MinCost)
	return &testServer{t: t, srv: srv}
}

type apiResponse struct {
	Code   int
	Header http.Header
	Body   map[string]any
}

func (ts *testServer) do(method, path, token string, body any) apiResponse {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				ts.t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)

	out := apiResponse{Code: w.Code, Header: w.Header()}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		if err := json.Unmarshal(w.Body.Bytes(), &out.Body); err != nil {
			ts.t.Fatalf("decode response: %v (%s)", err, w.Body.String())
		}
	}
	return out
}

func (ts *testServer) register(email string) string {
	ts.t.Helper()
	res := ts.do(http.MethodPost, "/auth/register", "", map[string]any{
		"name":                  "Test User",
		"email":                 email,
		"password":              "secret123",
		"password_confirmation": "secret123",
	})
	if res.Code != http.StatusCreated {
		ts.t.Fatalf("register: expected 201, got %d %v", res.Code, res.Body)
	}
	return res.Body["access_token"].(string)
}

func (ts *testServer) createTask(token string, body map[string]any) map[string]any {
	ts.t.Helper()
	res := ts.do(http.MethodPost, "/tasks", token, body)
	if res.Code != http.StatusCreated {
		ts.t.Fatalf("create task: expected 201, got %d %v", res.Code, res.Body)
	}
	return res.Body["data"].(map[string]any)
}

func taskPath(task map[string]any, suffix string) string {
	return fmt.Sprintf("/tasks/%d%s", int(task["id"].(float64)), suffix)
}

func TestRegister_TokenAuthenticatesMe(t *testing.T) {
	ts := newTestServer(t, nil)
	res := ts.do(http.MethodPost, "/auth/register", "", map[string]any{
		"name":                  "  Ann  ",
		"email":                 " Ann@Example.COM ",
		"password":              "secret123",
		"password_confirmation": "secret123",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %v", res.Code, res.Body)
	}
	if res.Body["token_type"] != "Bearer" || res.Body["expires_in"] != float64(2592000) {
		t.Fatalf("unexpected token fields: %v", res.Body)
	}
	user := res.Body["user"].(map[string]any)
	if user["email"] != "ann@example.com" || user["name"] != "Ann" {
		t.Fatalf("expected normalized user, got %v", user)
	}
	if _, leaked := user["password"]; leaked {
		t.Fatalf("password must not be serialized")
	}

	me := ts.do(http.MethodGet, "/auth/me", res.Body["access_token"].(string), nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", me.Code)
	}
	if me.Body["user"].(map[string]any)["id"] != user["id"] {
		t.Fatalf("me returned a different user: %v", me.Body)
	}
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	res := ts.do(http.MethodPost, "/auth/register", "", map[string]any{
		"name":                  "A",
		"email":                 "not-an-email",
		"password":              "short",
		"password_confirmation": "short",
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	errs := res.Body["errors"].(map[string]any)
	for _, field := range []string{"name", "email", "password"} {
		if errs[field] == nil {
			t.Fatalf("expected %s error, got %v", field, errs)
		}
	}

	res = ts.do(http.MethodPost, "/auth/register", "", `{"name":`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", res.Code)
	}

	ts.register("dup@x.io")
	res = ts.do(http.MethodPost, "/auth/register", "", map[string]any{
		"name": "Dup", "email": "DUP@x.io", "password": "secret123", "password_confirmation": "secret123",
	})
	if res.Code != http.StatusUnprocessableEntity || res.Body["errors"].(map[string]any)["email"] == nil {
		t.Fatalf("expected email taken error, got %d %v", res.Code, res.Body)
	}
}

func TestLogin_EleventhAttemptRateLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.register("ann@x.io")

	for i := 0; i < 10; i++ {
		res := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@x.io", "password": "wrong-password"})
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, res.Code)
		}
	}
	res := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@x.io", "password": "secret123"})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %v", res.Code, res.Body)
	}
	if res.Header.Get("Retry-After") == "" || res.Body["retry_after"] == nil {
		t.Fatalf("expected retry-after information, got %v %v", res.Header, res.Body)
	}
}

func TestLogin_RateLimitWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ts := newTestServer(t, rdb)
	ts.register("ann@x.io")
	for i := 0; i < 10; i++ {
		ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@x.io", "password": "nope-nope"})
	}
	res := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@x.io", "password": "secret123"})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}

	mr.FastForward(ts.srv.cfg.RateLimit.Window)
	res = ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ann@x.io", "password": "secret123"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected login after window to succeed, got %d", res.Code)
	}

	health := ts.do(http.MethodGet, "/healthz", "", nil)
	if health.Code != http.StatusOK || health.Body["redis"] != "connected" {
		t.Fatalf("unexpected healthz: %d %v", health.Code, health.Body)
	}
}

func TestLogin_InvalidatesPreviousTokens(t *testing.T) {
	ts := newTestServer(t, nil)
	old := ts.register("ann@x.io")

	res := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "ANN@x.io", "password": "secret123"})
	if res.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %v", res.Code, res.Body)
	}
	fresh := res.Body["access_token"].(string)

	if code := ts.do(http.MethodGet, "/auth/me", old, nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("old token: expected 401, got %d", code)
	}
	if code := ts.do(http.MethodGet, "/auth/me", fresh, nil).Code; code != http.StatusOK {
		t.Fatalf("new token: expected 200, got %d", code)
	}
}

func TestLogoutAndRefresh(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")

	res := ts.do(http.MethodPost, "/auth/refresh", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", res.Code)
	}
	if _, hasUser := res.Body["user"]; hasUser {
		t.Fatalf("refresh response should not include user")
	}
	refreshed := res.Body["access_token"].(string)
	if code := ts.do(http.MethodGet, "/auth/me", token, nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("pre-refresh token: expected 401, got %d", code)
	}

	if code := ts.do(http.MethodPost, "/auth/logout", refreshed, nil).Code; code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", code)
	}
	if code := ts.do(http.MethodPost, "/auth/logout", refreshed, nil).Code; code != http.StatusUnauthorized {
		t.Fatalf("second logout: expected 401, got %d", code)
	}
}

func TestAuthMiddleware_RejectsMissingOrBadHeader(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		ts.srv.Router().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestTasks_ForeignTaskIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.register("alice@x.io")
	bob := ts.register("bob@x.io")
	task := ts.createTask(alice, map[string]any{"title": "private"})

	checks := []struct {
		method, suffix string
		body           any
	}{
		{http.MethodGet, "", nil},
		{http.MethodPut, "", map[string]any{"title": "mine now"}},
		{http.MethodPatch, "/toggle", nil},
		{http.MethodDelete, "", nil},
	}
	for _, c := range checks {
		res := ts.do(c.method, taskPath(task, c.suffix), bob, c.body)
		if res.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", c.method, c.suffix, res.Code)
		}
		if _, leaked := res.Body["data"]; leaked {
			t.Fatalf("%s %s: response leaked task body", c.method, c.suffix)
		}
	}

	res := ts.do(http.MethodGet, taskPath(task, ""), alice, nil)
	if res.Code != http.StatusOK || res.Body["data"].(map[string]any)["title"] != "private" {
		t.Fatalf("owner should still see the untouched task, got %d %v", res.Code, res.Body)
	}
}

func TestTasks_RoundTripAndToggle(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")

	created := ts.createTask(token, map[string]any{"title": "abc"})
	res := ts.do(http.MethodGet, taskPath(created, ""), token, nil)
	got := res.Body["data"].(map[string]any)
	if got["title"] != "abc" || got["priority"] != "medium" || got["is_completed"] != false || got["description"] != nil {
		t.Fatalf("unexpected round trip %v", got)
	}

	first := ts.do(http.MethodPatch, taskPath(created, "/toggle"), token, nil)
	second := ts.do(http.MethodPatch, taskPath(created, "/toggle"), token, nil)
	if first.Body["data"].(map[string]any)["is_completed"] != true {
		t.Fatalf("first toggle should complete the task")
	}
	if second.Body["data"].(map[string]any)["is_completed"] != created["is_completed"] {
		t.Fatalf("second toggle should restore the original value")
	}
}

func TestTasks_BuyMilkScenario(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")

	res := ts.do(http.MethodPost, "/tasks", token, map[string]any{"title": "Buy milk", "priority": "high"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	data := res.Body["data"].(map[string]any)
	if data["priority"] != "high" || data["is_completed"] != false {
		t.Fatalf("unexpected created task %v", data)
	}

	res = ts.do(http.MethodPatch, taskPath(data, "/toggle"), token, nil)
	if res.Code != http.StatusOK || res.Body["data"].(map[string]any)["is_completed"] != true {
		t.Fatalf("expected toggled task, got %d %v", res.Code, res.Body)
	}
}

func TestTasks_CreateValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")

	cases := map[string]map[string]any{
		"title":       {"title": "   "},
		"priority":    {"title": "ok", "priority": "urgent"},
		"due_date":    {"title": "ok", "due_date": "next week"},
		"description": {"title": "ok", "description": string(bytes.Repeat([]byte("x"), 1001))},
	}
	for field, body := range cases {
		res := ts.do(http.MethodPost, "/tasks", token, body)
		if res.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", field, res.Code)
		}
		if res.Body["errors"].(map[string]any)[field] == nil {
			t.Fatalf("%s: expected field error, got %v", field, res.Body)
		}
	}

	created := ts.createTask(token, map[string]any{"title": "dated", "due_date": "2030-05-01"})
	if created["due_date"] != "2030-05-01T00:00:00Z" {
		t.Fatalf("unexpected due date %v", created["due_date"])
	}
}

func TestTasks_CreateRejectsTrailingData(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")

	res := ts.do(http.MethodPost, "/tasks", token, `{"title":"abc"} garbage`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for trailing data, got %d %v", res.Code, res.Body)
	}
	res = ts.do(http.MethodGet, "/tasks", token, nil)
	if res.Body["meta"].(map[string]any)["total"] != float64(0) {
		t.Fatalf("expected no task created, got %v", res.Body["meta"])
	}
}

func TestTasks_PartialUpdate(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	task := ts.createTask(token, map[string]any{"title": "draft", "description": "notes", "priority": "low"})

	res := ts.do(http.MethodPut, taskPath(task, ""), token, map[string]any{"priority": "high", "is_completed": true})
	if res.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d %v", res.Code, res.Body)
	}
	data := res.Body["data"].(map[string]any)
	if data["title"] != "draft" || data["description"] != "notes" || data["priority"] != "high" || data["is_completed"] != true {
		t.Fatalf("expected partial update, got %v", data)
	}

	res = ts.do(http.MethodPut, taskPath(task, ""), token, map[string]any{"description": nil})
	if res.Body["data"].(map[string]any)["description"] != nil {
		t.Fatalf("expected explicit null to clear description, got %v", res.Body)
	}

	res = ts.do(http.MethodPut, taskPath(task, ""), token, map[string]any{"title": ""})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected empty title to be rejected, got %d", res.Code)
	}
}

func TestTasks_ListClampsPerPage(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	for i := 0; i < 55; i++ {
		ts.createTask(token, map[string]any{"title": "task " + strconv.Itoa(i)})
	}

	res := ts.do(http.MethodGet, "/tasks?per_page=1000", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	items := res.Body["data"].([]any)
	meta := res.Body["meta"].(map[string]any)
	if len(items) != 50 || meta["per_page"] != float64(50) {
		t.Fatalf("expected clamp to 50, got %d items meta=%v", len(items), meta)
	}
	if meta["total"] != float64(55) || meta["last_page"] != float64(2) || meta["current_page"] != float64(1) {
		t.Fatalf("unexpected meta %v", meta)
	}

	res = ts.do(http.MethodGet, "/tasks", token, nil)
	if res.Body["meta"].(map[string]any)["per_page"] != float64(15) {
		t.Fatalf("expected default per_page 15, got %v", res.Body["meta"])
	}
}

func TestTasks_ListPageBeyondLast(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	ts.createTask(token, map[string]any{"title": "only"})

	res := ts.do(http.MethodGet, "/tasks?page=9223372036854775807", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if items := res.Body["data"].([]any); len(items) != 0 {
		t.Fatalf("expected empty page, got %v", items)
	}
	if meta := res.Body["meta"].(map[string]any); meta["total"] != float64(1) || meta["last_page"] != float64(1) {
		t.Fatalf("unexpected meta %v", meta)
	}
}

func TestTasks_SearchNonASCII(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	ts.createTask(token, map[string]any{"title": "ÉCOLE trip"})

	for _, q := range []string{"ÉCOLE", "école"} {
		res := ts.do(http.MethodGet, "/tasks?search="+url.QueryEscape(q), token, nil)
		if res.Body["meta"].(map[string]any)["total"] != float64(1) {
			t.Fatalf("search %q: expected 1 match, got %v", q, res.Body["meta"])
		}
	}
}

func TestTasks_ListFilters(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	milk := ts.createTask(token, map[string]any{"title": "Buy milk", "priority": "high"})
	ts.createTask(token, map[string]any{"title": "Walk dog", "description": "with MILK bone", "priority": "low"})
	ts.createTask(token, map[string]any{"title": "Pay rent"})
	ts.do(http.MethodPatch, taskPath(milk, "/toggle"), token, nil)

	count := func(query string) int {
		res := ts.do(http.MethodGet, "/tasks"+query, token, nil)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", query, res.Code)
		}
		return len(res.Body["data"].([]any))
	}
	if n := count("?status=completed"); n != 1 {
		t.Fatalf("completed: expected 1, got %d", n)
	}
	if n := count("?status=pending"); n != 2 {
		t.Fatalf("pending: expected 2, got %d", n)
	}
	if n := count("?search=milk"); n != 2 {
		t.Fatalf("search: expected 2, got %d", n)
	}
	if n := count("?search=milk&status=pending&priority=low"); n != 1 {
		t.Fatalf("combined: expected 1, got %d", n)
	}
	if code := ts.do(http.MethodGet, "/tasks?status=done", token, nil).Code; code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status: expected 422, got %d", code)
	}
	if code := ts.do(http.MethodGet, "/tasks?priority=urgent", token, nil).Code; code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid priority: expected 422, got %d", code)
	}
}

func TestTasks_DeleteTwice(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	task := ts.createTask(token, map[string]any{"title": "temporary"})

	if code := ts.do(http.MethodDelete, taskPath(task, ""), token, nil).Code; code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", code)
	}
	if code := ts.do(http.MethodGet, taskPath(task, ""), token, nil).Code; code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", code)
	}
	if code := ts.do(http.MethodDelete, taskPath(task, ""), token, nil).Code; code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", code)
	}
}

func TestTasks_NonNumericIDIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.register("ann@x.io")
	if code := ts.do(http.MethodGet, "/tasks/abc", token, nil).Code; code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestThrottle_LimitsPerAddress(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.srv.cfg.RateLimit.PerMinute = 2
	ts = &testServer{t: t, srv: New(Deps{Config: ts.srv.cfg, Logger: logger.Discard(), Store: ts.srv.store})}

	for i := 0; i < 2; i++ {
		if code := ts.do(http.MethodGet, "/tasks", "", nil).Code; code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i+1, code)
		}
	}
	res := ts.do(http.MethodGet, "/tasks", "", nil)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
	if code := ts.do(http.MethodGet, "/health", "", nil).Code; code != http.StatusOK {
		t.Fatalf("health should bypass throttle, got %d", code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	res := ts.do(http.MethodGet, "/health", "", nil)
	if res.Code != http.StatusOK || res.Body["status"] != "OK" || res.Body["version"] != "1.0.0" || res.Body["timestamp"] == nil {
		t.Fatalf("unexpected /health: %d %v", res.Code, res.Body)
	}

	res = ts.do(http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK || res.Body["database"] != "connected" {
		t.Fatalf("unexpected /healthz: %d %v", res.Code, res.Body)
	}

	if err := ts.srv.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	res = ts.do(http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after closing the database, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodGet, "/health", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("todopro_http_requests_total")) {
		t.Fatalf("expected prometheus exposition, got %d", w.Code)
	}
}

func TestSeedDemoData_Idempotent(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	if err := ts.srv.SeedDemoData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := ts.srv.SeedDemoData(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	res := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": demoEmail, "password": demoPassword})
	if res.Code != http.StatusOK {
		t.Fatalf("demo login: expected 200, got %d", res.Code)
	}
	list := ts.do(http.MethodGet, "/tasks", res.Body["access_token"].(string), nil)
	if n := len(list.Body["data"].([]any)); n != 4 {
		t.Fatalf("expected 4 demo tasks, got %d", n)
	}
}
