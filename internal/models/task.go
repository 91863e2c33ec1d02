package models

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ParsePriority accepts a priority name in any case. Empty input means medium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority: %q", s)
	}
	return p, nil
}

// Task is a locally stored unit of work. ID is assigned by the local store and
// never changes afterwards.
type Task struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     Priority   `json:"priority"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"created_at"`
	PhotoPath    *string    `json:"photo_path,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CompletedBy  *string    `json:"completed_by,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	LocationName *string    `json:"location_name,omitempty"`
	IsSynced     bool       `json:"is_synced"`
	LastModified time.Time  `json:"last_modified"`
}

func (t *Task) HasPhoto() bool {
	return t.PhotoPath != nil && *t.PhotoPath != ""
}

func (t *Task) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// MarkCompleted sets the completion flag together with who and when.
func (t *Task) MarkCompleted(by string, at time.Time) {
	t.Completed = true
	t.CompletedAt = &at
	if by != "" {
		t.CompletedBy = &by
	}
}

// RemoteVersion is the remote service's copy of a task and the time the
// server last recorded a change to it.
type RemoteVersion struct {
	Task             Task      `json:"task"`
	ServerModifiedAt time.Time `json:"server_modified_at"`
}
