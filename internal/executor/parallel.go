package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// RunParallel dequeues up to maxTasks tasks in one store write and runs them
// on at most workers goroutines. A task whose dependency or reference names
// an earlier task of the same batch starts only after that task finished,
// whatever its outcome. Outcomes come back in dequeue order.
func (e *Executor) RunParallel(ctx context.Context, maxTasks, workers int) ([]model.ExecutionOutcome, error) {
	if workers < 1 {
		workers = 1
	}
	if ctx.Err() != nil {
		return []model.ExecutionOutcome{}, nil
	}

	batch, err := e.store.DequeueBatch(maxTasks)
	if err != nil {
		return []model.ExecutionOutcome{}, fmt.Errorf("dequeue batch: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	outcomes := make([]model.ExecutionOutcome, len(batch))
	finished := make([]chan struct{}, len(batch))
	position := make(map[string]int, len(batch))
	for i, task := range batch {
		i, task := i, task
		finished[i] = make(chan struct{})
		if _, dup := position[task.ID]; !dup {
			position[task.ID] = i
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, task := range batch {
		i, task := i, task
		waitFor := earlierPrerequisites(task, i, position)
		g.Go(func() error {
			defer close(finished[i])
			for _, at := range waitFor {
				<-finished[at]
			}
			outcomes[i] = e.runTask(runCtx, task)
			return nil
		})
	}
	_ = g.Wait()

	e.logCycle(outcomes)
	return outcomes, nil
}

// earlierPrerequisites returns batch positions before i that task depends on.
// Later positions are ignored; waiting on them could exhaust the worker limit.
func earlierPrerequisites(task model.Task, i int, position map[string]int) []int {
	seen := make(map[int]bool)
	var out []int
	ids := append(append([]string(nil), task.Dependencies...), task.References()...)
	for _, id := range ids {
		at, ok := position[id]
		if !ok || at >= i || seen[at] {
			continue
		}
		seen[at] = true
		out = append(out, at)
	}
	return out
}
