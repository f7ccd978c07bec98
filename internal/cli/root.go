// Package cli 实现 todo 命令行客户端。
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"todopro/internal/client"
)

// DefaultAPIURL 未配置时使用的服务地址。
const DefaultAPIURL = "http://localhost:8000"

type app struct {
	v       *viper.Viper
	session *client.Session
	in      *bufio.Reader
	now     func() time.Time
}

// NewRootCommand 构造 todo 根命令。
//
// 服务地址优先级：--api > TODO_API_URL > DefaultAPIURL。
// 会话文件：--session > TODO_SESSION > client.DefaultSessionPath()。
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), now: time.Now}

	root := &cobra.Command{
		Use:           "todo",
		Short:         "TodoPro command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.in = bufio.NewReader(cmd.InOrStdin())
			return a.open()
		},
	}

	flags := root.PersistentFlags()
	flags.String("api", DefaultAPIURL, "TodoPro API base URL")
	flags.String("session", "", "session file path")
	_ = a.v.BindPFlag("api", flags.Lookup("api"))
	_ = a.v.BindPFlag("session", flags.Lookup("session"))
	_ = a.v.BindEnv("api", "TODO_API_URL")
	_ = a.v.BindEnv("session", "TODO_SESSION")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.listCmd(),
		a.addCmd(),
		a.editCmd(),
		a.doneCmd(),
		a.rmCmd(),
		a.reportCmd(),
	)
	return root
}

// Execute 运行命令并把错误转换为面向用户的文本。
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", Describe(err))
		return 1
	}
	return 0
}

func (a *app) open() error {
	path := a.v.GetString("session")
	if path == "" {
		p, err := client.DefaultSessionPath()
		if err != nil {
			return err
		}
		path = p
	}
	sess, err := client.OpenSession(client.New(a.v.GetString("api")), path)
	if err != nil {
		return err
	}
	a.session = sess
	return nil
}

func (a *app) requireLogin() error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

var errNotLoggedIn = errors.New("not logged in, run `todo login` first")

// credentialsError 标记来自 login/register 的错误，此时 401 表示凭据错误而非会话过期。
type credentialsError struct{ err error }

func (e credentialsError) Error() string { return e.err.Error() }
func (e credentialsError) Unwrap() error { return e.err }

// Describe 把客户端错误格式化为单行提示。
func Describe(err error) string {
	var apiErr *client.APIError
	var credErr credentialsError
	switch {
	case errors.Is(err, client.ErrConnectivity):
		return "cannot reach the TodoPro server, check --api or TODO_API_URL"
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if apiErr.Status == 401 && !errors.As(err, &credErr) {
			msg = "session expired, run `todo login` again"
		}
		if apiErr.RetryAfter > 0 && apiErr.Status == 429 {
			msg = fmt.Sprintf("%s (retry in %ds)", msg, apiErr.RetryAfter)
		}
		if len(apiErr.Fields) > 0 {
			names := make([]string, 0, len(apiErr.Fields))
			for name := range apiErr.Fields {
				names = append(names, name)
			}
			sort.Strings(names)
			var parts []string
			for _, name := range names {
				parts = append(parts, strings.Join(apiErr.Fields[name], " "))
			}
			msg += ": " + strings.Join(parts, " ")
		}
		return msg
	default:
		return err.Error()
	}
}

// prompt 从输入读取一行，value 非空时直接返回。
func (a *app) prompt(w io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(w, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
