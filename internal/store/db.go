// Package store 提供基于 GORM 的持久化层：用户、访问令牌与任务。
package store

import (
	"context"
	"errors"
	"fmt"

	"todopro/internal/config"
	"todopro/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound 记录不存在（或不属于当前用户）。
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken 邮箱已被注册。
	ErrEmailTaken = errors.New("email already taken")
)

// Open 根据配置打开数据库连接并执行自动迁移。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = SQLiteDialector(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite 只允许单写连接，避免 "database is locked"。
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 创建或更新表结构。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.AccessToken{}, &model.Task{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Store 聚合各实体的存储。
type Store struct {
	db     *gorm.DB
	Users  *UserStore
	Tokens *TokenStore
	Tasks  *TaskStore
}

// New 基于已打开的连接创建 Store。
func New(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		Users:  &UserStore{db: db},
		Tokens: &TokenStore{db: db},
		Tasks:  &TaskStore{db: db},
	}
}

// DB 返回底层连接。
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction 在同一事务中执行 fn，fn 返回错误时回滚。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// Ping 检查数据库是否可用。
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Close 关闭底层连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
