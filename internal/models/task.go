package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the canonical task status vocabulary of the REST API.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists the canonical values in workflow order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// legacyStatuses maps the inbox vocabulary used by the first API revision.
var legacyStatuses = map[string]Status{
	"nowe":        StatusPending,
	"przeczytane": StatusInProgress,
	"zakonczone":  StatusCompleted,
}

// ParseMode controls whether ParseStatus accepts the legacy vocabulary.
type ParseMode int

const (
	StrictOnly ParseMode = iota
	AllowLegacy
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus normalizes s into a canonical Status. Legacy names are only
// translated when mode is AllowLegacy.
func ParseStatus(s string, mode ParseMode) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if st := Status(v); st.Valid() {
		return st, nil
	}
	if mode == AllowLegacy {
		if st, ok := legacyStatuses[v]; ok {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Task is a single task record as served by GET /v1/tasks.
// Only ID and Title are guaranteed; everything else is optional.
type Task struct {
	ID                   ID     `json:"id"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	WebsiteURL           string `json:"website_url,omitempty"`
	Address              string `json:"address,omitempty"`
	Phone                string `json:"phone,omitempty"`
	Email                string `json:"email,omitempty"`
	DueDate              string `json:"due_date,omitempty"`
	DeliveryAddress      string `json:"delivery_address,omitempty"`
	Status               Status `json:"status,omitempty"`
	ApplicationManagerID string `json:"application_manager_id,omitempty"`
	CreatedAt            string `json:"created_at,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

// EffectiveStatus treats a missing status as pending, which is how the
// board buckets tasks that were created without one.
func (t Task) EffectiveStatus() Status {
	if t.Status == "" {
		return StatusPending
	}
	return t.Status
}

// TaskInput is the body for create and full update calls.
type TaskInput struct {
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	WebsiteURL      string  `json:"website_url,omitempty"`
	Address         string  `json:"address,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Email           string  `json:"email,omitempty"`
	DueDate         string  `json:"due_date,omitempty"`
	DeliveryAddress string  `json:"delivery_address,omitempty"`
	Status          *Status `json:"status,omitempty"`
}

// TaskPage is the paginated envelope some deployments wrap task lists in.
type TaskPage struct {
	Data        []Task `json:"data"`
	CurrentPage int    `json:"current_page,omitempty"`
	PerPage     int    `json:"per_page,omitempty"`
	Total       int    `json:"total,omitempty"`
}

// DecodeTaskList accepts either a bare JSON array or a {"data": [...]} page.
func DecodeTaskList(b []byte) ([]Task, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		return []Task{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var out []Task
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return out, nil
	}
	var page TaskPage
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, fmt.Errorf("decode task page: %w", err)
	}
	if page.Data == nil {
		return []Task{}, nil
	}
	return page.Data, nil
}
