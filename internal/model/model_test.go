package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewTask_Defaults(t *testing.T) {
	task, err := NewTask("Atlas", "Creator.Writer", PriorityHigh, "Create prompt pack", nil)
	require.NoError(t, err)

	assert.True(t, ValidateID(task.ID))
	assert.Equal(t, "Atlas", task.From)
	assert.Equal(t, DefaultRetryPolicy, task.RetryPolicy)
	assert.NotNil(t, task.Payload)
	assert.Empty(t, task.Dependencies)
	assert.NotEmpty(t, task.CreatedAt)
	assert.NoError(t, task.Validate())
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"ok", Task{ID: "t1", To: "Publisher", Priority: PriorityLow}, false},
		{"empty priority allowed", Task{ID: "t1", To: "Publisher"}, false},
		{"missing id", Task{To: "Publisher"}, true},
		{"missing to", Task{ID: "t1"}, true},
		{"bad priority", Task{ID: "t1", To: "Publisher", Priority: "urgent"}, true},
		{"self dependency", Task{ID: "t1", To: "Publisher", Dependencies: []string{"t1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTask_References(t *testing.T) {
	task := Task{Payload: map[string]any{"references": []any{"a", "b", 3}}}
	assert.Equal(t, []string{"a", "b"}, task.References())

	task = Task{Payload: map[string]any{"references": []string{"x"}}}
	assert.Equal(t, []string{"x"}, task.References())

	assert.Nil(t, Task{}.References())
}

func TestTaskQueue_YAMLRoundTrip(t *testing.T) {
	in := TaskQueue{
		SchemaVersion: 1,
		FileType:      "task_queue",
		Tasks: []Task{{
			ID:           "task_1771722060_b7c1d4e9",
			From:         "Atlas",
			To:           "Publisher",
			Priority:     PriorityHigh,
			Goal:         "Publish created artifacts",
			Payload:      map[string]any{"action": "publish_batch", "references": []any{"a", "b"}},
			Dependencies: []string{"a", "b"},
			RetryPolicy:  DefaultRetryPolicy,
			CreatedAt:    "2026-10-17T00:00:00Z",
		}},
	}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "task_id: task_1771722060_b7c1d4e9")

	var out TaskQueue
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOutcomes(t *testing.T) {
	task := Task{ID: "t1", To: "Publisher"}

	done := DoneOutcome(task, nil)
	assert.True(t, done.Done())
	assert.Equal(t, []string{}, done.Artifacts)

	failed := FailedOutcome(task, assert.AnError)
	assert.False(t, failed.Done())
	assert.Equal(t, assert.AnError.Error(), failed.Error)
	assert.Equal(t, OutcomeFailed, failed.Status)
}
