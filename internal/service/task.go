package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"todopro/internal/model"
	"todopro/internal/pkg/apperr"
	"todopro/internal/pkg/metrics"
	"todopro/internal/store"
)

// TaskService 封装任务仓储，统一错误分类与指标。
type TaskService struct {
	tasks  *store.TaskStore
	logger *slog.Logger
}

// NewTaskService 创建任务服务。
func NewTaskService(st *store.Store, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{tasks: st.Tasks, logger: logger}
}

// NewTask 新建任务的字段。
type NewTask struct {
	Title       string
	Description *string
	Priority    model.Priority
	DueDate     *time.Time
}

// TaskChanges 部分更新：指针为 nil 表示不修改；
// Description 与 DueDate 另用 Set 标记区分"未提供"与"清空"。
type TaskChanges struct {
	Title          *string
	SetDescription bool
	Description    *string
	Priority       *model.Priority
	SetDueDate     bool
	DueDate        *time.Time
	IsCompleted    *bool
}

func (c TaskChanges) columns() map[string]any {
	cols := make(map[string]any)
	if c.Title != nil {
		cols["title"] = *c.Title
	}
	if c.SetDescription {
		cols["description"] = c.Description
	}
	if c.Priority != nil {
		cols["priority"] = *c.Priority
	}
	if c.SetDueDate {
		cols["due_date"] = c.DueDate
	}
	if c.IsCompleted != nil {
		cols["is_completed"] = *c.IsCompleted
	}
	return cols
}

// List 分页列出用户任务。
func (s *TaskService) List(ctx context.Context, userID uint, filter store.TaskFilter, page, perPage int) (*store.TaskPage, error) {
	result, err := s.tasks.List(ctx, userID, filter, page, perPage)
	if err != nil {
		return nil, s.fail("list", userID, err)
	}
	return result, nil
}

// Create 创建任务。
func (s *TaskService) Create(ctx context.Context, userID uint, in NewTask) (*model.Task, error) {
	task := &model.Task{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		UserID:      userID,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, s.fail("create", userID, err)
	}
	metrics.TaskMutationsTotal.WithLabelValues("create").Inc()
	return task, nil
}

// Get 查询单个任务，非本人任务同样返回 NotFound。
func (s *TaskService) Get(ctx context.Context, id, userID uint) (*model.Task, error) {
	task, err := s.tasks.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, s.fail("get", userID, err)
	}
	return task, nil
}

// Update 应用部分更新。
func (s *TaskService) Update(ctx context.Context, id, userID uint, changes TaskChanges) (*model.Task, error) {
	task, err := s.tasks.Update(ctx, id, userID, changes.columns())
	if err != nil {
		return nil, s.fail("update", userID, err)
	}
	metrics.TaskMutationsTotal.WithLabelValues("update").Inc()
	return task, nil
}

// Delete 软删除任务。
func (s *TaskService) Delete(ctx context.Context, id, userID uint) error {
	if err := s.tasks.Delete(ctx, id, userID); err != nil {
		return s.fail("delete", userID, err)
	}
	metrics.TaskMutationsTotal.WithLabelValues("delete").Inc()
	return nil
}

// Toggle 翻转完成状态。
func (s *TaskService) Toggle(ctx context.Context, id, userID uint) (*model.Task, error) {
	task, err := s.tasks.Toggle(ctx, id, userID)
	if err != nil {
		return nil, s.fail("toggle", userID, err)
	}
	metrics.TaskMutationsTotal.WithLabelValues("toggle").Inc()
	return task, nil
}

func (s *TaskService) fail(op string, userID uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.ErrNotFound
	}
	s.logger.Error("task operation failed",
		slog.String("op", op),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("error", err.Error()))
	return apperr.Unexpected("", err)
}
