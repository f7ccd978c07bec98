package client

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Period 报表时间窗口。
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod 解析窗口名。
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	case "":
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q (want week, month or year)", s)
	}
}

// Start 返回窗口起点。
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// Report 一个时间窗口内（按 created_at）的任务统计。
type Report struct {
	Period         Period
	From, To       time.Time
	Total          int
	Completed      int
	Pending        int
	Overdue        int
	ByPriority     map[string]int
	CompletionRate int
	Productivity   float64
}

// BuildReport 聚合已拉取的任务列表。
func BuildReport(tasks []Task, period Period, now time.Time) Report {
	r := Report{
		Period:     period,
		From:       period.Start(now),
		To:         now,
		ByPriority: map[string]int{"high": 0, "medium": 0, "low": 0},
	}
	for _, t := range tasks {
		if t.CreatedAt.Before(r.From) || t.CreatedAt.After(r.To) {
			continue
		}
		r.Total++
		if t.IsCompleted {
			r.Completed++
		} else {
			r.Pending++
		}
		if t.Overdue(now) {
			r.Overdue++
		}
		if _, ok := r.ByPriority[t.Priority]; ok {
			r.ByPriority[t.Priority]++
		}
	}

	if r.Total > 0 {
		r.CompletionRate = int(math.Round(float64(r.Completed) / float64(r.Total) * 100))
	}
	onTime := math.Max(0, 100-float64(r.Overdue)/math.Max(1, float64(r.Total))*100)
	r.Productivity = math.Max(0, math.Min(100, float64(r.CompletionRate)*0.6+onTime*0.4))
	return r
}
