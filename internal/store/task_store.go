package store

import (
	"context"
	"strings"

	"todopro/internal/model"

	"gorm.io/gorm"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 50
)

// TaskFilter 列表筛选条件，各条件 AND 组合；零值表示不过滤。
type TaskFilter struct {
	Completed *bool
	Priority  model.Priority
	Search    string
}

// TaskPage 一页任务及分页信息。
type TaskPage struct {
	Items       []model.Task
	CurrentPage int
	LastPage    int
	PerPage     int
	Total       int64
}

// TaskStore 任务表访问，所有操作都限定在 userID 范围内。
type TaskStore struct {
	db *gorm.DB
}

// NormalizePage 规范化分页参数：page 至少为 1，perPage 默认 15 且限制在 [1, 50]。
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likePattern 构造子串匹配模式并转义通配符；大小写由数据库的 LOWER 统一折叠。
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// List 按筛选条件分页列出用户的任务，按创建时间倒序。
func (s *TaskStore) List(ctx context.Context, userID uint, filter TaskFilter, page, perPage int) (*TaskPage, error) {
	page, perPage = NormalizePage(page, perPage)

	q := s.db.WithContext(ctx).Model(&model.Task{}).Where("user_id = ?", userID)
	if filter.Completed != nil {
		q = q.Where("is_completed = ?", *filter.Completed)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := likePattern(search)
		q = q.Where("(LOWER(title) LIKE LOWER(?) ESCAPE '!' OR LOWER(COALESCE(description, '')) LIKE LOWER(?) ESCAPE '!')", p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}
	result := &TaskPage{
		Items:       []model.Task{},
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
	if page > lastPage {
		return result, nil
	}

	items := make([]model.Task, 0, perPage)
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	result.Items = items
	return result, nil
}

// Create 写入新任务，未指定优先级时使用 medium。
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	return s.db.WithContext(ctx).Create(task).Error
}

// FindForUser 查询属于 userID 的任务；不存在、已删除或不属于该用户都返回 ErrNotFound。
func (s *TaskStore) FindForUser(ctx context.Context, id, userID uint) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// Update 只修改 updates 中出现的列，返回更新后的任务。
func (s *TaskStore) Update(ctx context.Context, id, userID uint, updates map[string]any) (*model.Task, error) {
	if len(updates) == 0 {
		return s.FindForUser(ctx, id, userID)
	}
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	// 值未变化时 MySQL 报告 0 行受影响，统一以重新查询判断是否存在。
	return s.FindForUser(ctx, id, userID)
}

// Toggle 原子翻转完成状态。
func (s *TaskStore) Toggle(ctx context.Context, id, userID uint) (*model.Task, error) {
	res := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_completed", gorm.Expr("NOT is_completed"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindForUser(ctx, id, userID)
}

// Delete 软删除任务，重复删除返回 ErrNotFound。
func (s *TaskStore) Delete(ctx context.Context, id, userID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
