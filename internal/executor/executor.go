// Package executor drains the task store: each task is dispatched, its
// result normalized into artifacts, the artifacts persisted under the task's
// namespace and an outcome recorded. A failing task never stops the cycle.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Wbcubazo/Multiday-mini/internal/artifact"
	"github.com/Wbcubazo/Multiday-mini/internal/events"
	"github.com/Wbcubazo/Multiday-mini/internal/logging"
	"github.com/Wbcubazo/Multiday-mini/internal/memory"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// TaskSource is the dequeue side of the task store.
type TaskSource interface {
	DequeueFront() (model.Task, bool, error)
	DequeueBatch(n int) ([]model.Task, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, task model.Task) (any, error)
}

// OutcomeRecorder receives every outcome after it is decided.
type OutcomeRecorder interface {
	RecordOutcome(o model.ExecutionOutcome) error
}

type Executor struct {
	store      TaskSource
	dispatcher Dispatcher
	sink       artifact.Sink
	logger     *logging.Logger
	eventBus   *events.Bus
	recorder   OutcomeRecorder
	mem        memory.Store
}

type Option func(*Executor)

func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) { e.logger = l.With("executor") }
}

func WithEventBus(bus *events.Bus) Option {
	return func(e *Executor) { e.eventBus = bus }
}

func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithMemory records a short note for every completed task that carries a
// topic, so later plans can pick it up.
func WithMemory(mem memory.Store) Option {
	return func(e *Executor) { e.mem = mem }
}

func New(store TaskSource, dispatcher Dispatcher, sink artifact.Sink, opts ...Option) *Executor {
	e := &Executor{
		store:      store,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle executes up to maxTasks tasks one at a time in queue order and
// returns their outcomes in dispatch order. The only error it returns is a
// failure to persist the shortened queue, together with the outcomes gathered
// before it. Cancelling ctx stops the cycle between tasks; a task already
// dispatched always runs to completion or failure.
func (e *Executor) RunCycle(ctx context.Context, maxTasks int) ([]model.ExecutionOutcome, error) {
	outcomes := make([]model.ExecutionOutcome, 0)
	runCtx := context.WithoutCancel(ctx)

	for i := 0; i < maxTasks; i++ {
		if ctx.Err() != nil {
			e.logger.Infof("cycle_interrupted executed=%d reason=%v", len(outcomes), ctx.Err())
			break
		}

		task, ok, err := e.store.DequeueFront()
		if err != nil {
			e.logCycle(outcomes)
			return outcomes, fmt.Errorf("dequeue: %w", err)
		}
		if !ok {
			break
		}
		outcomes = append(outcomes, e.runTask(runCtx, task))
	}

	e.logCycle(outcomes)
	return outcomes, nil
}

// runTask is the per-task pipeline shared by RunCycle and RunParallel.
func (e *Executor) runTask(ctx context.Context, task model.Task) model.ExecutionOutcome {
	outcome := e.execute(ctx, task)
	e.finish(ctx, task, outcome)
	return outcome
}

func (e *Executor) execute(ctx context.Context, task model.Task) model.ExecutionOutcome {
	result, err := e.dispatcher.Dispatch(ctx, task)
	if err != nil {
		return model.FailedOutcome(task, err)
	}

	set, err := artifact.Normalize(result)
	if err != nil {
		return model.FailedOutcome(task, fmt.Errorf("normalize result: %w", err))
	}

	names, err := artifact.WriteSet(e.sink, task.ID, set)
	if err != nil {
		return model.FailedOutcome(task, fmt.Errorf("persist artifacts: %w", err))
	}
	return model.DoneOutcome(task, names)
}

func (e *Executor) finish(ctx context.Context, task model.Task, o model.ExecutionOutcome) {
	data := map[string]interface{}{
		"task_id": o.TaskID,
		"to":      o.To,
		"status":  string(o.Status),
	}
	if o.Done() {
		e.logger.Infof("task_done task_id=%s to=%s artifacts=%s", o.TaskID, o.To, strings.Join(o.Artifacts, ","))
		data["artifacts"] = o.Artifacts
		e.eventBus.Publish(events.EventTaskCompleted, data)
		e.remember(ctx, task, o)
	} else {
		e.logger.Errorf("task_failed task_id=%s to=%s error=%q", o.TaskID, o.To, o.Error)
		data["error"] = o.Error
		e.eventBus.Publish(events.EventTaskFailed, data)
	}

	if e.recorder != nil {
		if err := e.recorder.RecordOutcome(o); err != nil {
			e.logger.Warnf("outcome_record_failed task_id=%s error=%v", o.TaskID, err)
		}
	}
}

func (e *Executor) remember(ctx context.Context, task model.Task, o model.ExecutionOutcome) {
	if e.mem == nil {
		return
	}
	topic, _ := task.Payload["topic"].(string)
	if strings.TrimSpace(topic) == "" {
		return
	}
	kind, _ := task.Payload["kind"].(string)
	content := fmt.Sprintf("%s completed %s for %s", task.To, kind, topic)
	// outcome_topic, not topic: only explicit hints may steer the planner.
	_, err := e.mem.Record(ctx, content, map[string]any{
		"type":          "outcome",
		"task_id":       task.ID,
		"outcome_topic": topic,
		"kind":          kind,
		"source":        task.To,
	})
	if err != nil {
		e.logger.Warnf("memory_record_failed task_id=%s error=%v", task.ID, err)
	}
}

func (e *Executor) logCycle(outcomes []model.ExecutionOutcome) {
	failed := 0
	for _, o := range outcomes {
		if !o.Done() {
			failed++
		}
	}
	e.logger.Infof("cycle_complete executed=%d done=%d failed=%d", len(outcomes), len(outcomes)-failed, failed)
}
