package model

import (
	"fmt"
	"time"
)

// TaskQueue is the on-disk envelope of the task store.
type TaskQueue struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Tasks         []Task `yaml:"tasks"`
}

// Task is a unit of scheduled work addressed to a logical agent.
// Priority is advisory; the store serves tasks strictly in insertion order.
type Task struct {
	ID           string         `yaml:"task_id" json:"task_id"`
	From         string         `yaml:"from" json:"from"`
	To           string         `yaml:"to" json:"to"`
	Priority     Priority       `yaml:"priority" json:"priority"`
	Goal         string         `yaml:"goal" json:"goal"`
	Payload      map[string]any `yaml:"payload" json:"payload"`
	Dependencies []string       `yaml:"dependencies" json:"dependencies"`
	MemoryRefs   []string       `yaml:"memory_refs,omitempty" json:"memory_refs,omitempty"`
	RetryPolicy  RetryPolicy    `yaml:"retry_policy" json:"retry_policy"`
	CreatedAt    string         `yaml:"created_at" json:"created_at"`
}

// RetryPolicy is carried on every task but not consumed by the execution
// cycle. Capabilities or an outer scheduler may honor it.
type RetryPolicy struct {
	MaxRetries     int `yaml:"max_retries" json:"max_retries"`
	BackoffSeconds int `yaml:"backoff_seconds" json:"backoff_seconds"`
}

// DefaultRetryPolicy mirrors what the planner stamps on generated tasks.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, BackoffSeconds: 60}

// NewTask builds a task with a fresh ID, creation timestamp and default retry policy.
func NewTask(from, to string, priority Priority, goal string, payload map[string]any) (Task, error) {
	id, err := GenerateID(IDTypeTask)
	if err != nil {
		return Task{}, fmt.Errorf("generate task id: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Task{
		ID:           id,
		From:         from,
		To:           to,
		Priority:     priority,
		Goal:         goal,
		Payload:      payload,
		Dependencies: []string{},
		RetryPolicy:  DefaultRetryPolicy,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Validate checks the fields the store and dispatcher rely on.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task_id is required")
	}
	if t.To == "" {
		return fmt.Errorf("task %s: to is required", t.ID)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return fmt.Errorf("task %s: invalid priority %q", t.ID, t.Priority)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("task %s: self dependency", t.ID)
		}
	}
	return nil
}

// References returns payload.references as task IDs, if present.
func (t Task) References() []string {
	raw, ok := t.Payload["references"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		refs := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				refs = append(refs, s)
			}
		}
		return refs
	default:
		return nil
	}
}
