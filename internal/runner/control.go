package runner

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/Wbcubazo/Multiday-mini/internal/events"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
	"github.com/Wbcubazo/Multiday-mini/internal/uds"
)

// PlanParams is the body of a "plan" control request.
type PlanParams struct {
	Goal string `json:"goal"`
}

// PlanReply describes the batch a "plan" request enqueued.
type PlanReply struct {
	PlanID  string   `json:"plan_id"`
	Goal    string   `json:"goal"`
	Topics  []string `json:"topics"`
	TaskIDs []string `json:"task_ids"`
}

// StatusReply is returned by the "status" command.
type StatusReply struct {
	PID           int      `json:"pid"`
	Queue         string   `json:"queue"`
	Pending       int      `json:"pending"`
	PendingIDs    []string `json:"pending_ids"`
	Destinations  []string `json:"destinations"`
	DroppedEvents uint64   `json:"dropped_events"`

	// OldestPendingSec is the age of the head task, from its id.
	OldestPendingSec int64            `json:"oldest_pending_sec"`
	OutcomeLog       OutcomeLogStatus `json:"outcome_log"`
}

type OutcomeLogStatus struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	Valid   int    `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// ArtifactsParams is the body of an "artifacts" control request.
type ArtifactsParams struct {
	TaskID string `json:"task_id"`
}

type ArtifactsReply struct {
	TaskID string   `json:"task_id"`
	Root   string   `json:"root"`
	Names  []string `json:"names"`
}

func (r *Runner) registerHandlers(s *uds.Server) {
	s.Handle("ping", func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]any{"status": "ok", "pid": os.Getpid()})
	})

	s.Handle("status", func(context.Context, *uds.Request) *uds.Response {
		tasks, err := r.store.PeekAll()
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		reply := StatusReply{
			PID:           os.Getpid(),
			Queue:         r.store.Path(),
			Pending:       len(tasks),
			PendingIDs:    make([]string, len(tasks)),
			Destinations:  r.registry.Names(),
			DroppedEvents: r.bus.Dropped(),
		}
		for i, t := range tasks {
			reply.PendingIDs[i] = t.ID
		}
		if len(tasks) > 0 {
			if created, err := model.ParseIDTimestamp(tasks[0].ID); err == nil {
				reply.OldestPendingSec = int64(time.Since(created) / time.Second)
			}
		}
		reply.OutcomeLog = r.outcomeLogStatus()
		return uds.SuccessResponse(reply)
	})

	s.Handle("scan", func(ctx context.Context, _ *uds.Request) *uds.Response {
		if ctx.Err() != nil {
			return uds.ErrorResponse(uds.ErrCodeShuttingDown, "runner is shutting down")
		}
		outcomes, err := r.RunOnce(ctx)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		return uds.SuccessResponse(outcomes)
	})

	s.Handle("plan", func(ctx context.Context, req *uds.Request) *uds.Response {
		var p PlanParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		res, err := r.Plan(ctx, strings.TrimSpace(p.Goal))
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		return uds.SuccessResponse(PlanReply{
			PlanID:  res.PlanID,
			Goal:    res.Goal,
			Topics:  res.Topics,
			TaskIDs: res.TaskIDs,
		})
	})

	s.Handle("artifacts", func(_ context.Context, req *uds.Request) *uds.Response {
		var p ArtifactsParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		names, err := r.sink.List(p.TaskID)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		if names == nil {
			names = []string{}
		}
		return uds.SuccessResponse(ArtifactsReply{TaskID: p.TaskID, Root: r.sink.Root(), Names: names})
	})

	s.Handle("rotate_log", func(context.Context, *uds.Request) *uds.Response {
		if err := r.outcomes.Rotate(); err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
		}
		r.logger.Infof("outcome_log_rotated path=%s", r.outcomes.Path())
		return uds.SuccessResponse(map[string]string{"path": r.outcomes.Path()})
	})

	s.Handle("shutdown", func(context.Context, *uds.Request) *uds.Response {
		r.logger.Infof("shutdown requested via control socket")
		go r.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// outcomeLogStatus verifies the outcome log. A log that has not been written
// yet reports zero records.
func (r *Runner) outcomeLogStatus() OutcomeLogStatus {
	st := OutcomeLogStatus{Path: r.outcomes.Path()}
	if _, err := os.Stat(st.Path); os.IsNotExist(err) {
		return st
	}
	total, valid, err := events.VerifyIntegrity(st.Path)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Records, st.Valid = total, valid
	return st
}
