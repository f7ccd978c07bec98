package client

import (
	"context"
	"sort"
	"strings"
	"time"

	"todopro/internal/model"
)

// SortOrder 本地排序方式。
type SortOrder string

const (
	SortCreated  SortOrder = "created"
	SortPriority SortOrder = "priority"
	SortDueDate  SortOrder = "due_date"
)

// ParseSortOrder 解析排序名，未知值回退到 SortCreated。
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortPriority:
		return SortPriority
	case SortDueDate, "due":
		return SortDueDate
	default:
		return SortCreated
	}
}

// listPageSize 视图加载时每页的条数（服务端上限）。
const listPageSize = 50

// Counts 列表计数。
type Counts struct {
	Total     int
	Active    int
	Completed int
}

// TaskView 当前筛选条件下的完整任务列表。
// 每次变更后重新拉取，不做本地修补。
type TaskView struct {
	client *Client
	filter ListQuery
	tasks  []Task
}

// NewTaskView 创建视图，filter 中的 Page/PerPage 会被忽略。
func NewTaskView(c *Client, filter ListQuery) *TaskView {
	filter.Page, filter.PerPage = 0, 0
	return &TaskView{client: c, filter: filter}
}

// SetFilter 替换筛选条件并重新加载。
func (v *TaskView) SetFilter(ctx context.Context, filter ListQuery) error {
	filter.Page, filter.PerPage = 0, 0
	v.filter = filter
	return v.Reload(ctx)
}

// Reload 逐页拉取直到 last_page。失败时保留上一次的列表。
func (v *TaskView) Reload(ctx context.Context) error {
	var all []Task
	q := v.filter
	q.PerPage = listPageSize
	for page := 1; ; page++ {
		q.Page = page
		res, err := v.client.ListTasks(ctx, q)
		if err != nil {
			return err
		}
		all = append(all, res.Data...)
		if page >= res.Meta.LastPage || len(res.Data) == 0 {
			break
		}
	}
	v.tasks = all
	return nil
}

// Tasks 返回已加载的任务（服务端顺序）。
func (v *TaskView) Tasks() []Task {
	return v.tasks
}

// Counts 统计已加载的任务。
func (v *TaskView) Counts() Counts {
	c := Counts{Total: len(v.tasks)}
	for _, t := range v.tasks {
		if t.IsCompleted {
			c.Completed++
		} else {
			c.Active++
		}
	}
	return c
}

// Visible 对已加载任务做本地搜索与排序，不发起请求。
func (v *TaskView) Visible(search string, order SortOrder) []Task {
	out := FilterTasks(v.tasks, search)
	SortTasks(out, order)
	return out
}

// Create 创建任务后重新加载。
func (v *TaskView) Create(ctx context.Context, in TaskInput) (*Task, error) {
	task, err := v.client.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	return task, v.Reload(ctx)
}

// Update 更新任务后重新加载。
func (v *TaskView) Update(ctx context.Context, id uint, patch TaskPatch) (*Task, error) {
	task, err := v.client.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return task, v.Reload(ctx)
}

// Toggle 翻转完成状态后重新加载。
func (v *TaskView) Toggle(ctx context.Context, id uint) (*Task, error) {
	task, err := v.client.ToggleTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return task, v.Reload(ctx)
}

// Delete 删除任务后重新加载。
func (v *TaskView) Delete(ctx context.Context, id uint) error {
	if err := v.client.DeleteTask(ctx, id); err != nil {
		return err
	}
	return v.Reload(ctx)
}

// FilterTasks 返回标题或描述包含 search（不区分大小写）的任务副本。
func FilterTasks(tasks []Task, search string) []Task {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if needle == "" || strings.Contains(strings.ToLower(t.Title), needle) ||
			(t.Description != nil && strings.Contains(strings.ToLower(*t.Description), needle)) {
			out = append(out, t)
		}
	}
	return out
}

// SortTasks 原地稳定排序。
func SortTasks(tasks []Task, order SortOrder) {
	var less func(a, b Task) bool
	switch order {
	case SortPriority:
		less = func(a, b Task) bool { return model.Priority(a.Priority).Rank() > model.Priority(b.Priority).Rank() }
	case SortDueDate:
		less = func(a, b Task) bool {
			switch {
			case a.DueDate == nil:
				return false
			case b.DueDate == nil:
				return true
			default:
				return a.DueDate.Before(*b.DueDate)
			}
		}
	default:
		less = func(a, b Task) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}

// Overdue 截止时间已过且未完成。
func (t Task) Overdue(now time.Time) bool {
	return !t.IsCompleted && t.DueDate != nil && t.DueDate.Before(now)
}
