package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"todopro/internal/api"
	"todopro/internal/client"
	"todopro/internal/config"
	"todopro/internal/pkg/logger"
	"todopro/internal/store/storetest"
)

type harness struct {
	t       *testing.T
	url     string
	session string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.RateLimit.PerMinute = 0
	srv := api.New(api.Deps{
		Config: cfg,
		Logger: logger.Discard(),
		Store:  storetest.NewStore(t),
	})
	srv.AuthService().SetBcryptCost(bcrypt.MinCost)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{t: t, url: ts.URL, session: filepath.Join(t.TempDir(), "session.json")}
}

func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--api", h.url, "--session", h.session}, args...)
	code := Execute(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	code, out, errOut := h.run("", args...)
	if code != 0 {
		h.t.Fatalf("todo %s: exit %d, stderr %q", strings.Join(args, " "), code, errOut)
	}
	return out
}

func TestCLIWorkflow(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "--name", "Ada", "--email", "ada@example.com", "--password", "password123")
	if !strings.Contains(out, "ada@example.com") {
		t.Fatalf("register output: %q", out)
	}

	if out := h.mustRun("whoami"); !strings.Contains(out, "Ada <ada@example.com>") {
		t.Fatalf("whoami output: %q", out)
	}

	if out := h.mustRun("add", "Write report", "--priority", "high", "--due", "2030-02-01"); !strings.Contains(out, "Created task #1") {
		t.Fatalf("add output: %q", out)
	}
	h.mustRun("add", "Buy milk", "--description", "two litres")

	out = h.mustRun("list", "--sort", "priority")
	if strings.Index(out, "Write report") > strings.Index(out, "Buy milk") {
		t.Fatalf("priority sort not applied: %q", out)
	}
	if !strings.Contains(out, "2 total, 2 active, 0 completed") {
		t.Fatalf("list counts: %q", out)
	}

	if out := h.mustRun("done", "1"); !strings.Contains(out, "now completed") {
		t.Fatalf("done output: %q", out)
	}
	if out := h.mustRun("list", "--status", "completed"); !strings.Contains(out, "Write report") || strings.Contains(out, "Buy milk") {
		t.Fatalf("status filter: %q", out)
	}

	h.mustRun("edit", "2", "--title", "Buy oat milk", "--clear-description")
	if out := h.mustRun("list", "--search", "oat"); !strings.Contains(out, "Buy oat milk") {
		t.Fatalf("edit not visible: %q", out)
	}

	out = h.mustRun("report", "--period", "week")
	for _, want := range []string{"Total:        2", "Completed:    1", "Completion:   50%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q: %q", want, out)
		}
	}

	h.mustRun("rm", "2")
	code, _, errOut := h.run("", "rm", "2")
	if code == 0 || !strings.Contains(errOut, "task not found") {
		t.Fatalf("second rm: exit %d, stderr %q", code, errOut)
	}

	if out := h.mustRun("logout"); !strings.Contains(out, "Logged out") {
		t.Fatalf("logout output: %q", out)
	}
	code, _, errOut = h.run("", "list")
	if code == 0 || !strings.Contains(errOut, "not logged in") {
		t.Fatalf("list after logout: exit %d, stderr %q", code, errOut)
	}
}

func TestCLILoginPromptsAndReportsFailures(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--name", "Ada", "--email", "ada@example.com", "--password", "password123")
	h.mustRun("logout")

	code, _, errOut := h.run("wrong-password\n", "login", "--email", "ada@example.com")
	if code == 0 || !strings.Contains(errOut, "invalid credentials") {
		t.Fatalf("bad login: exit %d, stderr %q", code, errOut)
	}

	code, out, errOut := h.run("password123\n", "login", "--email", "ada@example.com")
	if code != 0 || !strings.Contains(out, "Signed in as Ada") {
		t.Fatalf("login: exit %d, stdout %q, stderr %q", code, out, errOut)
	}
}

func TestCLIValidationMessage(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--name", "Ada", "--email", "ada@example.com", "--password", "password123")

	code, _, errOut := h.run("", "add", "Bad", "--priority", "urgent")
	if code == 0 || !strings.Contains(errOut, "priority") {
		t.Fatalf("expected priority validation error, got exit %d, stderr %q", code, errOut)
	}
}

func TestCLIConnectivity(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	var stdout, stderr bytes.Buffer
	session := filepath.Join(t.TempDir(), "session.json")
	code := Execute(context.Background(),
		[]string{"--api", url, "--session", session, "login", "--email", "a@b.c", "--password", "x"},
		strings.NewReader(""), &stdout, &stderr)
	if code == 0 || !strings.Contains(stderr.String(), "cannot reach") {
		t.Fatalf("exit %d, stderr %q", code, stderr.String())
	}
}

func TestDescribe_UnauthorizedDependsOnCommand(t *testing.T) {
	apiErr := &client.APIError{Status: http.StatusUnauthorized, Message: "credentials rejected"}

	if got := Describe(credentialsError{apiErr}); got != "credentials rejected" {
		t.Fatalf("sign-in failure should show the server message, got %q", got)
	}
	if got := Describe(fmt.Errorf("list: %w", apiErr)); !strings.Contains(got, "todo login") {
		t.Fatalf("expired session should suggest logging in, got %q", got)
	}
	if got := Describe(credentialsError{client.ErrConnectivity}); !strings.Contains(got, "cannot reach") {
		t.Fatalf("connectivity error should pass through the wrapper, got %q", got)
	}
}

func TestCLIExpiredSessionHint(t *testing.T) {
	h := newHarness(t)
	h.mustRun("register", "--name", "Ada", "--email", "ada@example.com", "--password", "password123")

	other := &harness{t: t, url: h.url, session: filepath.Join(t.TempDir(), "other.json")}
	other.mustRun("login", "--email", "ada@example.com", "--password", "password123")

	code, _, errOut := h.run("", "whoami")
	if code == 0 || !strings.Contains(errOut, "session expired") {
		t.Fatalf("revoked session: exit %d, stderr %q", code, errOut)
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Fatalf("parseID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "abc"} {
		if _, err := parseID(bad); err == nil {
			t.Fatalf("parseID(%q) should fail", bad)
		}
	}
}
