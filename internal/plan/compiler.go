// Package plan turns a free-text goal into a dependency-ordered task batch.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Wbcubazo/Multiday-mini/internal/events"
	"github.com/Wbcubazo/Multiday-mini/internal/logging"
	"github.com/Wbcubazo/Multiday-mini/internal/memory"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

const (
	DefaultGoal          = "Autonomous: create one prompt pack and one ebook today for student productivity."
	DefaultFallbackTopic = "student productivity with AI"
	DefaultFromAgent     = "Atlas"
	DefaultContentAgent  = "Creator.Writer"
	DefaultPublishAgent  = "Publisher"
	DefaultRecentWindow  = 10

	KindPromptPack     = "prompt_pack"
	KindEbook          = "ebook"
	ActionPublishBatch = "publish_batch"
)

// Enqueuer is the part of the task store the compiler writes to.
type Enqueuer interface {
	EnqueueAll(tasks ...model.Task) error
}

type Compiler struct {
	mem          memory.Store
	cfg          model.PlannerConfig
	recentWindow int
	logger       *logging.Logger
	bus          *events.Bus
	now          func() time.Time
}

type CompilerOption func(*Compiler)

// WithPlannerConfig overrides agent names, default goal and fallback topic.
// Empty fields keep their defaults.
func WithPlannerConfig(cfg model.PlannerConfig) CompilerOption {
	return func(c *Compiler) {
		if cfg.DefaultGoal != "" {
			c.cfg.DefaultGoal = cfg.DefaultGoal
		}
		if cfg.FallbackTopic != "" {
			c.cfg.FallbackTopic = cfg.FallbackTopic
		}
		if cfg.FromAgent != "" {
			c.cfg.FromAgent = cfg.FromAgent
		}
		if cfg.ContentAgent != "" {
			c.cfg.ContentAgent = cfg.ContentAgent
		}
		if cfg.PublishAgent != "" {
			c.cfg.PublishAgent = cfg.PublishAgent
		}
	}
}

func WithRecentWindow(n int) CompilerOption {
	return func(c *Compiler) {
		if n > 0 {
			c.recentWindow = n
		}
	}
}

func WithLogger(l *logging.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l.With("planner") }
}

func WithEventBus(bus *events.Bus) CompilerOption {
	return func(c *Compiler) { c.bus = bus }
}

// NewCompiler creates a compiler. mem may be nil, in which case no history
// is consulted and no plan summary is recorded.
func NewCompiler(mem memory.Store, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		mem: mem,
		cfg: model.PlannerConfig{
			DefaultGoal:   DefaultGoal,
			FallbackTopic: DefaultFallbackTopic,
			FromAgent:     DefaultFromAgent,
			ContentAgent:  DefaultContentAgent,
			PublishAgent:  DefaultPublishAgent,
		},
		recentWindow: DefaultRecentWindow,
		logger:       logging.Discard(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result describes one compiled plan.
type Result struct {
	PlanID  string
	Goal    string // goal text after default and memory substitution
	Topics  []string
	Tasks   []model.Task
	TaskIDs []string
}

// Compile expands goal into producer tasks plus one publish_batch task that
// references them. snapshot is recent memory; an entry naming a topic
// overrides the topics found in goal. The plan summary is recorded into
// memory as a side effect.
func (c *Compiler) Compile(ctx context.Context, goal string, snapshot []memory.Entry) ([]model.Task, error) {
	res, err := c.compile(ctx, goal, snapshot)
	if err != nil {
		return nil, err
	}
	return res.Tasks, nil
}

// Plan reads the recent memory window, compiles goal and enqueues the batch
// with one store write.
func (c *Compiler) Plan(ctx context.Context, goal string, store Enqueuer) (*Result, error) {
	var snapshot []memory.Entry
	if c.mem != nil {
		recent, err := c.mem.Recent(ctx, c.recentWindow)
		if err != nil {
			// history only biases topic choice
			c.logger.Warnf("memory_recent_failed error=%v", err)
		} else {
			snapshot = recent
		}
	}

	res, err := c.compile(ctx, goal, snapshot)
	if err != nil {
		return nil, err
	}
	if err := store.EnqueueAll(res.Tasks...); err != nil {
		return nil, fmt.Errorf("enqueue plan %s: %w", res.PlanID, err)
	}
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, goal string, snapshot []memory.Entry) (*Result, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		goal = c.cfg.DefaultGoal
	}

	var topics []string
	if topic := TopicFromMemory(snapshot); topic != "" {
		goal = fmt.Sprintf("Create prompt pack and ebook for %q", topic)
		topics = []string{topic}
	} else {
		topics = ExtractTopics(goal, c.cfg.FallbackTopic)
	}

	planID, err := model.GenerateID(model.IDTypePlan)
	if err != nil {
		return nil, fmt.Errorf("plan id: %w", err)
	}

	var tasks []model.Task
	for _, topic := range topics {
		pack, err := c.newTask(c.cfg.ContentAgent, model.PriorityHigh,
			"Create prompt pack for "+topic,
			map[string]any{"kind": KindPromptPack, "topic": topic})
		if err != nil {
			return nil, err
		}
		ebook, err := c.newTask(c.cfg.ContentAgent, model.PriorityMedium,
			"Create ebook for "+topic,
			map[string]any{"kind": KindEbook, "title": topic + ": Micro eBook", "topic": topic})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, pack, ebook)
	}

	refs := make([]string, len(tasks))
	for i, t := range tasks {
		refs[i] = t.ID
	}
	publish, err := c.newTask(c.cfg.PublishAgent, model.PriorityHigh, "Publish created artifacts",
		map[string]any{"action": ActionPublishBatch, "references": append([]string(nil), refs...)})
	if err != nil {
		return nil, err
	}
	publish.Dependencies = append([]string(nil), refs...)
	tasks = append(tasks, publish)

	if err := ValidateBatchOrder(tasks); err != nil {
		return nil, fmt.Errorf("plan %s: %w", planID, err)
	}

	res := &Result{PlanID: planID, Goal: goal, Topics: topics, Tasks: tasks, TaskIDs: append(refs, publish.ID)}
	c.recordSummary(ctx, res)

	c.logger.Infof("plan_compiled plan_id=%s topics=%q tasks=%d", planID, topics, len(tasks))
	if c.bus != nil {
		c.bus.Publish(events.EventPlanCompiled, map[string]interface{}{
			"plan_id":  planID,
			"goal":     goal,
			"task_ids": res.TaskIDs,
		})
	}
	return res, nil
}

func (c *Compiler) newTask(to string, priority model.Priority, goal string, payload map[string]any) (model.Task, error) {
	t, err := model.NewTask(c.cfg.FromAgent, to, priority, goal, payload)
	if err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = c.now().UTC().Format(time.RFC3339)
	return t, nil
}

// recordSummary writes the plan into memory. A failure is logged and does not
// fail planning.
func (c *Compiler) recordSummary(ctx context.Context, res *Result) {
	if c.mem == nil {
		return
	}
	summary, err := json.Marshal(map[string]any{
		"plan_id":  res.PlanID,
		"plan_cmd": res.Goal,
		"tasks":    res.TaskIDs,
		"ts":       c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		c.logger.Warnf("plan_summary_encode_failed plan_id=%s error=%v", res.PlanID, err)
		return
	}
	if _, err := c.mem.Record(ctx, string(summary), map[string]any{
		"type":    "plan",
		"source":  c.cfg.FromAgent,
		"plan_id": res.PlanID,
	}); err != nil {
		c.logger.Warnf("plan_summary_record_failed plan_id=%s error=%v", res.PlanID, err)
	}
}
