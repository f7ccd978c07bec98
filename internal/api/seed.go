package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"todopro/internal/model"
	"todopro/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	demoEmail    = "demo@todopro.local"
	demoPassword = "password123"
)

// SeedDemoData 初始化演示用户与示例任务，已存在时不做修改。
func (s *Server) SeedDemoData(ctx context.Context) error {
	user, err := s.store.Users.FindByEmail(ctx, demoEmail)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if user != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	user = &model.User{
		Name:            "Demo User",
		Email:           demoEmail,
		Password:        string(hash),
		EmailVerifiedAt: &now,
	}

	return s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		for _, task := range demoTasks(user.ID, now) {
			if err := tx.Tasks.Create(ctx, &task); err != nil {
				return err
			}
		}
		s.logger.Info("demo data seeded", slog.String("email", demoEmail))
		return nil
	})
}

func demoTasks(userID uint, now time.Time) []model.Task {
	desc := func(s string) *string { return &s }
	due := func(d time.Duration) *time.Time {
		t := now.Add(d).Truncate(time.Second)
		return &t
	}
	return []model.Task{
		{
			UserID:      userID,
			Title:       "Set up project repository",
			Description: desc("Initialize git and push the first commit"),
			Priority:    model.PriorityHigh,
			IsCompleted: true,
			DueDate:     due(-48 * time.Hour),
		},
		{
			UserID:      userID,
			Title:       "Write API documentation",
			Description: desc("Document every endpoint with request and response examples"),
			Priority:    model.PriorityMedium,
			DueDate:     due(72 * time.Hour),
		},
		{
			UserID:   userID,
			Title:    "Review pull requests",
			Priority: model.PriorityHigh,
			DueDate:  due(-24 * time.Hour),
		},
		{
			UserID:   userID,
			Title:    "Buy milk",
			Priority: model.PriorityLow,
		},
	}
}
