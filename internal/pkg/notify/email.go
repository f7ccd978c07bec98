package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"todopro/internal/config"
	"todopro/internal/model"

	"gopkg.in/gomail.v2"
)

// Sender 抽象 SMTP 投递，便于测试替换。
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier 通过 SMTP 发送邮件。
type EmailNotifier struct {
	cfg    config.EmailConfig
	sender Sender
	logger *slog.Logger
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		logger: logger,
	}
}

// WithSender 替换底层投递实现。
func (n *EmailNotifier) WithSender(s Sender) *EmailNotifier {
	n.sender = s
	return n
}

// Configured 判断 SMTP 配置是否完整。
func (n *EmailNotifier) Configured() bool {
	return n.cfg.SMTPHost != "" && n.cfg.FromEmail != ""
}

// SendWelcome 发送注册欢迎邮件；未配置 SMTP 时记录日志并跳过。
func (n *EmailNotifier) SendWelcome(ctx context.Context, user model.User) error {
	if !n.Configured() {
		n.logger.Warn("email config missing, skip welcome mail", slog.Uint64("user_id", uint64(user.ID)))
		return nil
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetAddressHeader("To", user.Email, user.Name)
	m.SetHeader("Subject", "[TodoPro] Welcome aboard")
	m.SetBody("text/html", welcomeBody(user.Name))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("welcome email sent", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

func welcomeBody(name string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome to TodoPro, %s!</h2>
    <p>Your account is ready. Sign in to start organizing your tasks.</p>
  </div>
</body>
</html>`, html.EscapeString(name))
}
