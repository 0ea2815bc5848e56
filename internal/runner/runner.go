// Package runner keeps the execution cycle going: it runs a cycle at
// startup, whenever the queue file changes and on a periodic tick, while
// holding the directory lock that makes it the store's only writer.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Wbcubazo/Multiday-mini/internal/artifact"
	"github.com/Wbcubazo/Multiday-mini/internal/config"
	"github.com/Wbcubazo/Multiday-mini/internal/dispatch"
	"github.com/Wbcubazo/Multiday-mini/internal/events"
	"github.com/Wbcubazo/Multiday-mini/internal/executor"
	"github.com/Wbcubazo/Multiday-mini/internal/lock"
	"github.com/Wbcubazo/Multiday-mini/internal/logging"
	"github.com/Wbcubazo/Multiday-mini/internal/memory"
	"github.com/Wbcubazo/Multiday-mini/internal/model"
	"github.com/Wbcubazo/Multiday-mini/internal/plan"
	"github.com/Wbcubazo/Multiday-mini/internal/queue"
	"github.com/Wbcubazo/Multiday-mini/internal/uds"
)

type Runner struct {
	cfg     model.Config
	logger  *logging.Logger
	closers []io.Closer

	fileLock *lock.FileLock
	registry *dispatch.Registry
	store    *queue.Store
	mem      memory.Store
	bus      *events.Bus
	ownsBus  bool
	outcomes *events.OutcomeLog
	detach   func()
	sink     *artifact.FileSink
	planner  *plan.Compiler
	exec     *executor.Executor

	watcher *fsnotify.Watcher
	ticker  *time.Ticker
	control *uds.Server
	trigger chan struct{}
	cycleMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	shutdown sync.Once
}

type Option func(*options)

type options struct {
	logWriter io.Writer
	mem       memory.Store
	bus       *events.Bus
}

// WithLogWriter sends log lines to w instead of the configured file.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) { o.logWriter = w }
}

// WithMemory supplies the memory store instead of opening the configured one.
// The runner does not close it.
func WithMemory(mem memory.Store) Option {
	return func(o *options) { o.mem = mem }
}

func WithEventBus(bus *events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// New wires the store, memory, dispatcher, sink, executor and planner
// described by cfg. Capabilities come from reg.
func New(cfg model.Config, reg *dispatch.Registry, opts ...Option) (*Runner, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runner{
		cfg:      cfg,
		fileLock: lock.NewFileLock(config.LockPath(cfg)),
		registry: reg,
		trigger:  make(chan struct{}, 1),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	if err := r.openLogger(o.logWriter); err != nil {
		return nil, err
	}

	r.bus = o.bus
	if r.bus == nil {
		r.bus = events.NewBus(0)
		r.ownsBus = true
	}

	store, err := queue.Open(config.QueuePath(cfg),
		queue.WithLogger(r.logger),
		queue.WithCorruptionHandler(func(ce *queue.CorruptionError) {
			r.bus.Publish(events.EventStoreCorruption, map[string]interface{}{
				"path":           ce.Path,
				"quarantined_to": ce.QuarantinedTo,
				"error":          ce.Cause.Error(),
			})
		}))
	if err != nil {
		r.closeAll()
		return nil, err
	}
	r.store = store

	r.mem = o.mem
	if r.mem == nil {
		if r.mem, err = openMemory(cfg.Memory); err != nil {
			r.closeAll()
			return nil, err
		}
		if c, ok := r.mem.(io.Closer); ok {
			r.closers = append(r.closers, c)
		}
	}

	r.outcomes, err = events.NewOutcomeLog(config.OutcomeLogPath(cfg), events.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		r.closeAll()
		return nil, err
	}
	r.closers = append(r.closers, r.outcomes)
	r.outcomes.EnableChecksum(cfg.Logging.OutcomeChecksum)
	r.detach = r.outcomes.Subscribe(r.bus)

	d := dispatch.New(reg, r.logger,
		dispatch.WithTimeout(time.Duration(cfg.Executor.TaskTimeoutSec)*time.Second),
		dispatch.WithEventBus(r.bus))
	r.sink = artifact.NewFileSink(cfg.Artifacts.Dir)
	r.exec = executor.New(store, d, r.sink,
		executor.WithLogger(r.logger),
		executor.WithEventBus(r.bus),
		executor.WithOutcomeRecorder(r.outcomes),
		executor.WithMemory(r.mem))
	r.planner = plan.NewCompiler(r.mem,
		plan.WithPlannerConfig(cfg.Planner),
		plan.WithRecentWindow(cfg.Memory.RecentWindow),
		plan.WithLogger(r.logger),
		plan.WithEventBus(r.bus))

	r.logger = r.logger.With("runner")
	return r, nil
}

func (r *Runner) openLogger(w io.Writer) error {
	if w == nil {
		w = os.Stderr
		if r.cfg.Logging.File != "" {
			f, err := logging.OpenFile(r.cfg.Logging.File, r.cfg.Logging)
			if err != nil {
				return err
			}
			r.closers = append(r.closers, f)
			w = f
		}
	}
	r.logger = logging.New(w, logging.ParseLevel(r.cfg.Logging.Level), "multiday")
	return nil
}

func openMemory(cfg model.MemoryConfig) (memory.Store, error) {
	switch cfg.Driver {
	case config.DriverInProc:
		return memory.NewInProcess(), nil
	default:
		return memory.OpenSQLite(cfg.Path)
	}
}

func (r *Runner) Store() *queue.Store { return r.store }

func (r *Runner) Bus() *events.Bus { return r.bus }

// Plan compiles goal against recent memory and enqueues the resulting batch.
func (r *Runner) Plan(ctx context.Context, goal string) (*plan.Result, error) {
	return r.planner.Plan(ctx, goal, r.store)
}

// RunOnce runs a single cycle with the configured task limit. Cycles never
// overlap within one runner.
func (r *Runner) RunOnce(ctx context.Context) ([]model.ExecutionOutcome, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	if r.cfg.Executor.Workers > 1 {
		return r.exec.RunParallel(ctx, r.cfg.Executor.MaxTasks, r.cfg.Executor.Workers)
	}
	return r.exec.RunCycle(ctx, r.cfg.Executor.MaxTasks)
}

// Run takes the directory lock and processes the queue until ctx is done or
// Shutdown is called. It returns lock.ErrLocked (wrapped) when another runner
// owns the directory.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fileLock.TryLock(); err != nil {
		return fmt.Errorf("runner lock: %w", err)
	}
	r.logger.Infof("runner starting pid=%d queue=%s", os.Getpid(), r.store.Path())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		_ = r.fileLock.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	r.watcher = watcher
	if err := watcher.Add(filepath.Dir(r.store.Path())); err != nil {
		_ = watcher.Close()
		_ = r.fileLock.Unlock()
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.store.Path()), err)
	}

	if r.cfg.Runner.ControlSocket {
		r.control = uds.NewServer(config.SocketPath(r.cfg), r.logger)
		r.registerHandlers(r.control)
		if err := r.control.Start(); err != nil {
			_ = watcher.Close()
			_ = r.fileLock.Unlock()
			return fmt.Errorf("start control socket: %w", err)
		}
	}

	r.ticker = time.NewTicker(time.Duration(r.cfg.Runner.ScanIntervalSec) * time.Second)
	r.started.Store(true)

	r.wg.Add(3)
	go r.watchLoop()
	go r.tickerLoop()
	go r.cycleLoop()

	r.request("startup")
	r.logger.Infof("runner ready")

	select {
	case <-ctx.Done():
		r.logger.Infof("context done, initiating graceful shutdown")
	case <-r.ctx.Done():
	}
	r.Shutdown()
	return nil
}

// request schedules a cycle. Requests made while one is pending collapse
// into it.
func (r *Runner) request(reason string) {
	select {
	case r.trigger <- struct{}{}:
		r.logger.Debugf("cycle_requested reason=%s", reason)
	default:
	}
}

func (r *Runner) cycleLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.trigger:
			if _, err := r.RunOnce(r.ctx); err != nil {
				r.logger.Errorf("cycle_failed error=%v", err)
			}
		}
	}
}

// watchLoop turns writes to the queue file into cycle requests, waiting for
// the debounce window to pass without further writes.
func (r *Runner) watchLoop() {
	defer r.wg.Done()

	queueName := filepath.Base(r.store.Path())
	debounce := time.Duration(r.cfg.Runner.DebounceMs) * time.Millisecond
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != queueName {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				r.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				timer.Reset(debounce)
			}
		case <-timer.C:
			r.request("queue_changed")
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (r *Runner) tickerLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.ticker.C:
			r.request("tick")
		}
	}
}

// Shutdown stops accepting work, waits for the running cycle to finish its
// current task (bounded by runner.shutdown_timeout_sec) and releases
// resources. It is safe to call more than once.
func (r *Runner) Shutdown() {
	r.shutdown.Do(func() {
		r.logger.Infof("shutdown started")
		r.cancel()

		if r.started.Load() {
			if r.control != nil {
				r.control.Stop()
			}
			r.ticker.Stop()
			_ = r.watcher.Close()

			timeout := time.Duration(r.cfg.Runner.ShutdownTimeoutSec) * time.Second
			done := make(chan struct{})
			go func() {
				r.wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				r.logger.Infof("all goroutines drained")
			case <-time.After(timeout):
				r.logger.Warnf("shutdown timeout after %s, a task may still be running", timeout)
			}
		}

		r.logger.Infof("runner stopped")
		if r.detach != nil {
			r.detach()
		}
		if r.ownsBus {
			r.bus.Close()
		}
		r.closeAll()
		if err := r.fileLock.Unlock(); err != nil {
			r.logger.Warnf("release lock error=%v", err)
		}
	})
}

// closeAll closes resources in reverse order of opening, so the log file
// goes last.
func (r *Runner) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.logger.Warnf("close error=%v", err)
		}
	}
	r.closers = nil
}
