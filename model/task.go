package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docpipe/helper"
)

// TaskStatus is the lifecycle state of a generation task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the task status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// DocumentStatus is the per-document state within a generation task.
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusRunning DocumentStatus = "running"
	DocumentStatusDone    DocumentStatus = "done"
	DocumentStatusFailed  DocumentStatus = "failed"
)

// Terminal reports whether the document status is a terminal state.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusDone || s == DocumentStatusFailed
}

// DocumentProgress is the status of one requested document type in a task.
type DocumentProgress struct {
	Status DocumentStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// ProgressMap maps requested document types to their progress.
type ProgressMap map[DocumentType]DocumentProgress

// Value implements the driver.Valuer interface for database storage
func (p ProgressMap) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for database retrieval
func (p *ProgressMap) Scan(value interface{}) error {
	if value == nil {
		*p = ProgressMap{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, p)
}

// TypeList is an ordered list of document types stored as JSONB.
type TypeList []DocumentType

// Value implements the driver.Valuer interface for database storage
func (l TypeList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *TypeList) Scan(value interface{}) error {
	if value == nil {
		*l = TypeList{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, l)
}

// GenerationTask tracks one batch generation request. It is created queued,
// mutated only by the scheduler and ends in completed or failed. A task that
// finishes after attempting every ready document reaches completed even when
// individual documents failed; failed is reserved for scheduler faults.
type GenerationTask struct {
	ID              uuid.UUID   `json:"id"`
	Program         string      `json:"program"`
	RequestedTypes  TypeList    `json:"requested_types"`
	Status          TaskStatus  `json:"status"`
	PerDocument     ProgressMap `json:"per_document"`
	ProgressPercent int         `json:"progress_percent"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Progress recomputes the progress percentage from the per-document states:
// round(100 * terminal / requested).
func (t *GenerationTask) Progress() int {
	if len(t.RequestedTypes) == 0 {
		return 0
	}
	terminal := 0
	for _, docType := range t.RequestedTypes {
		if p, ok := t.PerDocument[docType]; ok && p.Status.Terminal() {
			terminal++
		}
	}
	return int(float64(terminal)/float64(len(t.RequestedTypes))*100 + 0.5)
}
