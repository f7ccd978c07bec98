package model

import (
	"time"

	"gorm.io/gorm"
)

// Priority 任务优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid 判断优先级是否合法。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank 返回排序权重，high > medium > low。
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Task 表示用户的一条待办事项。
//
// 删除为软删除：DeletedAt 非空的行被默认查询排除，但数据保留。
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description *string        `gorm:"type:text" json:"description"`
	IsCompleted bool           `gorm:"not null;default:false;index:idx_tasks_user_completed,priority:2" json:"is_completed"`
	Priority    Priority       `gorm:"type:varchar(10);not null;default:medium;index:idx_tasks_user_priority,priority:2" json:"priority"`
	DueDate     *time.Time     `gorm:"index" json:"due_date"`
	UserID      uint           `gorm:"not null;index:idx_tasks_user_completed,priority:1;index:idx_tasks_user_priority,priority:1" json:"user_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
