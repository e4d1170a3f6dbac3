package domain

import (
	"fmt"
	"time"
)

// InputSpec is the task's arbitrary structured configuration: a non-empty
// mapping from non-empty string keys to JSON-restricted values (string,
// number, bool, nil, list, or nested mapping).
type InputSpec map[string]any

// Validate enforces the §3 shape constraints on an InputSpec.
func (s InputSpec) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("input_spec must be non-empty")
	}
	for k, v := range s {
		if k == "" {
			return fmt.Errorf("input_spec keys must be non-empty strings")
		}
		if err := validateInputSpecValue(v); err != nil {
			return fmt.Errorf("input_spec[%q]: %w", k, err)
		}
	}
	return nil
}

func validateInputSpecValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64:
		return nil
	case []any:
		for i, item := range val {
			if err := validateInputSpecValue(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		for k, item := range val {
			if k == "" {
				return fmt.Errorf("nested keys must be non-empty strings")
			}
			if err := validateInputSpecValue(item); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

// Task is a unit of work within a Project; it carries the input a
// PipelineRun will execute against.
type Task struct {
	ID        string
	TenantID  string
	ProjectID string
	InputSpec InputSpec
	Status    TaskStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanQueue reports whether a draft task may transition to queued. This is
// the only user-initiated transition; all others are engine-driven.
func (t *Task) CanQueue() bool {
	return t.Status == TaskStatusDraft
}

// MarkQueued transitions draft -> queued.
func (t *Task) MarkQueued() error {
	if !t.CanQueue() {
		return fmt.Errorf("task %s: cannot queue from status %s", t.ID, t.Status)
	}
	t.Status = TaskStatusQueued
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkRunning transitions queued -> running (engine-driven).
func (t *Task) MarkRunning() {
	t.Status = TaskStatusRunning
	t.UpdatedAt = time.Now().UTC()
}

// MarkCompleted transitions running -> completed (engine-driven).
func (t *Task) MarkCompleted() {
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions running -> failed (engine-driven).
func (t *Task) MarkFailed() {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now().UTC()
}
