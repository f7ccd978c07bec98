package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"todopro/internal/api/middleware"
	"todopro/internal/api/response"
	"todopro/internal/model"
	"todopro/internal/pkg/apperr"
	"todopro/internal/pkg/validation"
	"todopro/internal/service"
	"todopro/internal/store"

	"github.com/gin-gonic/gin"
)

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description *string `json:"description" binding:"omitnil,max=1000"`
	Priority    string  `json:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate     *string `json:"due_date" binding:"omitnil,date"`
}

func (r *createTaskRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = validation.TrimToNull(r.Description)
	r.Priority = strings.TrimSpace(r.Priority)
	r.DueDate = validation.TrimToNull(r.DueDate)
}

// updateTaskRequest 部分更新，未出现的字段保持不变。
type updateTaskRequest struct {
	Title       *string                   `json:"title" binding:"omitnil,min=1,max=255"`
	Description validation.NullableString `json:"description" binding:"omitempty,max=1000"`
	Priority    *string                   `json:"priority" binding:"omitnil,oneof=low medium high"`
	DueDate     validation.NullableString `json:"due_date" binding:"omitempty,date"`
	IsCompleted *bool                     `json:"is_completed"`
}

func (r *updateTaskRequest) Normalize() {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	r.Description.TrimToNull()
	r.DueDate.TrimToNull()
}

type paginationMeta struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// handleListTasks 列出当前用户的任务。
//
// 查询参数: status (all|completed|pending|active), priority, search, page, per_page。
func (s *Server) handleListTasks(c *gin.Context) {
	userID := currentUserID(c)

	filter, err := parseTaskFilter(c)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	page := parseQueryInt(c, "page", 1)
	perPage := parseQueryInt(c, "per_page", store.DefaultPerPage)
	if perPage < 1 {
		perPage = 1
	}

	result, err := s.tasks.List(c.Request.Context(), userID, filter, page, perPage)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": result.Items,
		"meta": paginationMeta{
			CurrentPage: result.CurrentPage,
			LastPage:    result.LastPage,
			PerPage:     result.PerPage,
			Total:       result.Total,
		},
	})
}

func parseTaskFilter(c *gin.Context) (store.TaskFilter, error) {
	var filter store.TaskFilter

	switch status := strings.ToLower(strings.TrimSpace(c.Query("status"))); status {
	case "", "all":
	case "completed":
		v := true
		filter.Completed = &v
	case "pending", "active":
		v := false
		filter.Completed = &v
	default:
		return filter, apperr.FieldError("status", "The selected status is invalid.")
	}

	if raw := strings.ToLower(strings.TrimSpace(c.Query("priority"))); raw != "" {
		p := model.Priority(raw)
		if !p.Valid() {
			return filter, apperr.FieldError("priority", "The selected priority is invalid.")
		}
		filter.Priority = p
	}

	filter.Search = strings.TrimSpace(c.Query("search"))
	return filter, nil
}

// handleCreateTask 创建任务。
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := validation.BindJSON(c.Request.Body, &req); err != nil {
		response.Error(c, s.logger, err)
		return
	}

	in := service.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Priority:    model.Priority(req.Priority),
	}
	if req.DueDate != nil {
		due := mustParseDate(*req.DueDate)
		in.DueDate = &due
	}

	task, err := s.tasks.Create(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Task created successfully", "data": task})
}

// handleGetTask 返回单个任务。
func (s *Server) handleGetTask(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	task, err := s.tasks.Get(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": task})
}

// handleUpdateTask 部分更新任务。
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	var req updateTaskRequest
	if err := validation.BindJSON(c.Request.Body, &req); err != nil {
		response.Error(c, s.logger, err)
		return
	}

	changes := service.TaskChanges{
		Title:          req.Title,
		SetDescription: req.Description.Set,
		Description:    req.Description.Value,
		SetDueDate:     req.DueDate.Set,
		IsCompleted:    req.IsCompleted,
	}
	if req.Priority != nil {
		p := model.Priority(*req.Priority)
		changes.Priority = &p
	}
	if req.DueDate.Value != nil {
		due := mustParseDate(*req.DueDate.Value)
		changes.DueDate = &due
	}

	task, err := s.tasks.Update(c.Request.Context(), id, currentUserID(c), changes)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task updated successfully", "data": task})
}

// handleDeleteTask 软删除任务。
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	if err := s.tasks.Delete(c.Request.Context(), id, currentUserID(c)); err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// handleToggleTask 翻转完成状态。
func (s *Server) handleToggleTask(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	task, err := s.tasks.Toggle(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		response.Error(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task status updated successfully", "data": task})
}

// parseTaskID 非法 ID 与不存在的任务一样按 404 处理。
func parseTaskID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.ErrNotFound
	}
	return uint(id), nil
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func currentUserID(c *gin.Context) uint {
	if p := middleware.Principal(c); p != nil {
		return p.User.ID
	}
	return 0
}

// mustParseDate 只用于已通过 date 规则校验的值。
func mustParseDate(raw string) time.Time {
	t, _ := validation.ParseDate(raw)
	return t
}
