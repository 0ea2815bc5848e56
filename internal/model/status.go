package model

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
}

func (p Priority) Valid() bool {
	return validPriorities[p]
}

type OutcomeStatus string

const (
	OutcomeDone   OutcomeStatus = "done"
	OutcomeFailed OutcomeStatus = "failed"
)

// ExecutionOutcome reports what happened to one dispatched task.
// It is returned to the caller of a cycle and never written back to the queue.
type ExecutionOutcome struct {
	TaskID    string        `json:"task_id" yaml:"task_id"`
	To        string        `json:"to,omitempty" yaml:"to,omitempty"`
	Status    OutcomeStatus `json:"status" yaml:"status"`
	Artifacts []string      `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

func (o ExecutionOutcome) Done() bool {
	return o.Status == OutcomeDone
}

func DoneOutcome(task Task, artifacts []string) ExecutionOutcome {
	if artifacts == nil {
		artifacts = []string{}
	}
	return ExecutionOutcome{TaskID: task.ID, To: task.To, Status: OutcomeDone, Artifacts: artifacts}
}

func FailedOutcome(task Task, err error) ExecutionOutcome {
	return ExecutionOutcome{TaskID: task.ID, To: task.To, Status: OutcomeFailed, Error: err.Error()}
}
