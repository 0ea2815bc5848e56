package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/Wbcubazo/Multiday-mini/internal/events"
	"github.com/Wbcubazo/Multiday-mini/internal/logging"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

// Dispatcher runs one task against the capability registered for task.To.
type Dispatcher struct {
	registry *Registry
	logger   *logging.Logger
	timeout  time.Duration
	eventBus *events.Bus
}

type Option func(*Dispatcher)

// WithTimeout bounds each capability call. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

func WithEventBus(bus *events.Bus) Option {
	return func(disp *Dispatcher) { disp.eventBus = bus }
}

func New(reg *Registry, logger *logging.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: reg, logger: logger.With("dispatcher")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves and runs the capability for task. Resolution failures
// are returned unwrapped; anything that goes wrong inside the capability is
// returned as *CapabilityExecutionError. A capability that ignores ctx is
// abandoned once the deadline passes and its goroutine is left to finish on
// its own.
func (d *Dispatcher) Dispatch(ctx context.Context, task model.Task) (any, error) {
	d.logger.Infof("dispatch_start task_id=%s to=%s", task.ID, task.To)

	capability, err := d.registry.Resolve(task.To)
	if err != nil {
		d.logger.Errorf("dispatch_resolve_failed task_id=%s to=%s error=%v", task.ID, task.To, err)
		return nil, err
	}

	d.eventBus.Publish(events.EventTaskDispatched, map[string]interface{}{
		"task_id": task.ID,
		"to":      task.To,
	})

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type runResult struct {
		value any
		err   error
	}
	done := make(chan runResult, 1)
	start := time.Now()
	go func() {
		var res runResult
		defer func() {
			if r := recover(); r != nil {
				res = runResult{err: fmt.Errorf("panic: %v", r)}
			}
			done <- res
		}()
		res.value, res.err = capability.Run(ctx, task)
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		select {
		case res = <-done:
		default:
			res = runResult{err: ctx.Err()}
			// The goroutine cannot be stopped; it keeps running alongside
			// whatever is dispatched next.
			d.logger.Warnf("capability_abandoned task_id=%s to=%s cause=%v", task.ID, task.To, ctx.Err())
			go func() {
				<-done
				d.logger.Warnf("capability_returned_late task_id=%s to=%s after=%s",
					task.ID, task.To, time.Since(start).Round(time.Millisecond))
			}()
		}
	}

	if res.err != nil {
		return nil, &CapabilityExecutionError{TaskID: task.ID, Destination: task.To, Cause: res.err}
	}
	d.logger.Debugf("dispatch_success task_id=%s to=%s", task.ID, task.To)
	return res.value, nil
}
