package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Email     EmailConfig     `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env                string        `json:"env"`                  // 运行环境: local / prod
	LogLevel           string        `json:"log_level"`            // 日志级别: debug / info / warn / error
	HTTPAddr           string        `json:"http_addr"`            // API 服务监听地址
	Version            string        `json:"version"`              // /health 返回的版本号
	ShutdownTimeout    time.Duration `json:"shutdown_timeout"`     // 优雅关闭超时
	TokenPruneInterval time.Duration `json:"token_prune_interval"` // 过期 token 清理间隔
	SeedDemo           bool          `json:"seed_demo"`            // 启动时写入演示数据
	MailWorkers        int           `json:"mail_workers"`         // 邮件发送 worker 数
	MailQueueCapacity  int           `json:"mail_queue_capacity"`  // 邮件队列容量
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / postgres / sqlite
	DSN    string `json:"dsn"`    // 连接字符串
}

// RedisConfig Redis 配置，Addr 为空时限流计数使用进程内存。
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret"` // token 签名密钥
	TokenTTL  time.Duration `json:"token_ttl"`  // token 有效期
}

// RateLimitConfig 限流配置。
type RateLimitConfig struct {
	RegisterAttempts int           `json:"register_attempts"` // 窗口内允许的注册次数
	LoginAttempts    int           `json:"login_attempts"`    // 窗口内允许的登录失败次数
	Window           time.Duration `json:"window"`            // 固定窗口长度
	PerMinute        int           `json:"per_minute"`        // 每个 IP 每分钟的全局请求上限，0 表示关闭
}

// EmailConfig 邮件配置，SMTPHost 为空时不发送邮件。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// Load 从 JSON 文件加载配置。
//
// 文件不存在时使用默认值；随后环境变量覆盖文件中的值。
//
// 参数:
//
//	configPath: 配置文件路径（为空则使用 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 读取或解析失败时返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, cfg.Validate()
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		App: AppConfig{
			Env:                "local",
			LogLevel:           "info",
			HTTPAddr:           ":8000",
			Version:            "1.0.0",
			ShutdownTimeout:    10 * time.Second,
			TokenPruneInterval: time.Hour,
			MailWorkers:        2,
			MailQueueCapacity:  100,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "todopro.db",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
			TokenTTL:  30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RegisterAttempts: 5,
			LoginAttempts:    10,
			Window:           5 * time.Minute,
			PerMinute:        120,
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
	}
}

// Validate 检查配置是否可用。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn must not be empty")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.Version == "" {
		cfg.App.Version = defaults.App.Version
	}
	if cfg.App.ShutdownTimeout == 0 {
		cfg.App.ShutdownTimeout = defaults.App.ShutdownTimeout
	}
	if cfg.App.TokenPruneInterval == 0 {
		cfg.App.TokenPruneInterval = defaults.App.TokenPruneInterval
	}
	if cfg.App.MailWorkers == 0 {
		cfg.App.MailWorkers = defaults.App.MailWorkers
	}
	if cfg.App.MailQueueCapacity == 0 {
		cfg.App.MailQueueCapacity = defaults.App.MailQueueCapacity
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.RateLimit.RegisterAttempts == 0 {
		cfg.RateLimit.RegisterAttempts = defaults.RateLimit.RegisterAttempts
	}
	if cfg.RateLimit.LoginAttempts == 0 {
		cfg.RateLimit.LoginAttempts = defaults.RateLimit.LoginAttempts
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = defaults.RateLimit.Window
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("db_password", "DB_PASSWORD")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("smtp_pass", "SMTP_PASS")

	if s := os.Getenv("APP_ENV"); s != "" {
		cfg.App.Env = s
	}
	if s := os.Getenv("APP_LOG_LEVEL"); s != "" {
		cfg.App.LogLevel = s
	}
	if s := os.Getenv("APP_HTTP_ADDR"); s != "" {
		cfg.App.HTTPAddr = s
	}
	if s := os.Getenv("APP_VERSION"); s != "" {
		cfg.App.Version = s
	}
	if s := os.Getenv("APP_SEED_DEMO"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if s := os.Getenv("APP_TOKEN_PRUNE_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.App.TokenPruneInterval = d
		}
	}
	if s := os.Getenv("APP_MAIL_WORKERS"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.App.MailWorkers = i
		}
	}

	if s := os.Getenv("DB_DRIVER"); s != "" {
		cfg.Database.Driver = strings.ToLower(s)
	}
	if s := os.Getenv("DB_DSN"); s != "" {
		cfg.Database.DSN = s
	} else if cfg.Database.Driver == "mysql" && (hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_NAME") || v.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if s := os.Getenv("DB_HOST"); s != "" {
			parsed.Addr = s + ":" + getenvDefault("DB_PORT", parsed.Addr, "3306")
		} else if s := os.Getenv("DB_PORT"); s != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + s
		}
		if s := os.Getenv("DB_USER"); s != "" {
			parsed.User = s
		}
		if s := v.GetString("db_password"); s != "" {
			parsed.Passwd = s
		}
		if s := os.Getenv("DB_NAME"); s != "" {
			parsed.DBName = s
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if s := v.GetString("redis_addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("redis_password"); s != "" {
		cfg.Redis.Password = s
	}

	if s := v.GetString("jwt_secret"); s != "" {
		cfg.Security.JWTSecret = s
	}
	if s := os.Getenv("TOKEN_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Security.TokenTTL = d
		}
	}

	if s := os.Getenv("RATE_LIMIT_PER_MINUTE"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.RateLimit.PerMinute = i
		}
	}

	if s := os.Getenv("SMTP_HOST"); s != "" {
		cfg.Email.SMTPHost = s
	}
	if s := os.Getenv("SMTP_PORT"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if s := os.Getenv("SMTP_USER"); s != "" {
		cfg.Email.SMTPUser = s
	}
	if s := v.GetString("smtp_pass"); s != "" {
		cfg.Email.SMTPPass = s
	}
	if s := os.Getenv("SMTP_FROM"); s != "" {
		cfg.Email.FromEmail = s
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := mysql.NewConfig()
	fallback.User = "root"
	fallback.Net = "tcp"
	fallback.Addr = "localhost:3306"
	fallback.DBName = "todopro"
	fallback.ParseTime = true

	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 支持 Duration 字符串（如 "1h"）。
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		ShutdownTimeout    string `json:"shutdown_timeout"`
		TokenPruneInterval string `json:"token_prune_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := parseDurationField("shutdown_timeout", aux.ShutdownTimeout, &a.ShutdownTimeout); err != nil {
		return err
	}
	return parseDurationField("token_prune_interval", aux.TokenPruneInterval, &a.TokenPruneInterval)
}

// UnmarshalJSON 支持 token_ttl 为 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenTTL string `json:"token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return parseDurationField("token_ttl", aux.TokenTTL, &s.TokenTTL)
}

// UnmarshalJSON 支持 window 为 Duration 字符串。
func (r *RateLimitConfig) UnmarshalJSON(data []byte) error {
	type Alias RateLimitConfig
	aux := &struct {
		Window string `json:"window"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return parseDurationField("window", aux.Window, &r.Window)
}

func parseDurationField(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format: %w", name, err)
	}
	*dst = d
	return nil
}
