// Package config loads the scheduler configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
	"github.com/Wbcubazo/Multiday-mini/internal/plan"
	"github.com/Wbcubazo/Multiday-mini/internal/uds"
)

const (
	DriverSQLite = "sqlite"
	DriverInProc = "inproc"
)

// Default returns the configuration used when no file overrides a key.
func Default() model.Config {
	return model.Config{
		Store: model.StoreConfig{
			Dir:       ".multiday",
			QueueFile: "tasks_queue.yaml",
		},
		Artifacts: model.ArtifactsConfig{Dir: ".multiday/artifacts"},
		Executor: model.ExecutorConfig{
			MaxTasks:       10,
			TaskTimeoutSec: 300,
			Workers:        1,
		},
		Runner: model.RunnerConfig{
			ScanIntervalSec:    60,
			DebounceMs:         250,
			ShutdownTimeoutSec: 30,
			ControlSocket:      true,
		},
		Memory: model.MemoryConfig{
			Driver:       DriverSQLite,
			Path:         ".multiday/memory.db",
			RecentWindow: plan.DefaultRecentWindow,
		},
		Planner: model.PlannerConfig{
			DefaultGoal:   plan.DefaultGoal,
			FallbackTopic: plan.DefaultFallbackTopic,
			FromAgent:     plan.DefaultFromAgent,
			ContentAgent:  plan.DefaultContentAgent,
			PublishAgent:  plan.DefaultPublishAgent,
		},
		Logging: model.LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,

			OutcomeChecksum: true,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Keys missing from the file keep their default value.
func Load(path string) (model.Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return model.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return model.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg model.Config) {
	v.SetDefault("store.dir", cfg.Store.Dir)
	v.SetDefault("store.queue_file", cfg.Store.QueueFile)
	v.SetDefault("artifacts.dir", cfg.Artifacts.Dir)
	v.SetDefault("executor.max_tasks", cfg.Executor.MaxTasks)
	v.SetDefault("executor.task_timeout_sec", cfg.Executor.TaskTimeoutSec)
	v.SetDefault("executor.workers", cfg.Executor.Workers)
	v.SetDefault("runner.scan_interval_sec", cfg.Runner.ScanIntervalSec)
	v.SetDefault("runner.debounce_ms", cfg.Runner.DebounceMs)
	v.SetDefault("runner.shutdown_timeout_sec", cfg.Runner.ShutdownTimeoutSec)
	v.SetDefault("runner.control_socket", cfg.Runner.ControlSocket)
	v.SetDefault("memory.driver", cfg.Memory.Driver)
	v.SetDefault("memory.path", cfg.Memory.Path)
	v.SetDefault("memory.recent_window", cfg.Memory.RecentWindow)
	v.SetDefault("planner.default_goal", cfg.Planner.DefaultGoal)
	v.SetDefault("planner.fallback_topic", cfg.Planner.FallbackTopic)
	v.SetDefault("planner.from_agent", cfg.Planner.FromAgent)
	v.SetDefault("planner.content_agent", cfg.Planner.ContentAgent)
	v.SetDefault("planner.publish_agent", cfg.Planner.PublishAgent)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.outcome_checksum", cfg.Logging.OutcomeChecksum)
}

// Validate reports every invalid field at once.
func Validate(cfg model.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(cfg.Store.Dir) != "", "store.dir is required")
	check(strings.TrimSpace(cfg.Store.QueueFile) != "", "store.queue_file is required")
	check(filepath.Base(cfg.Store.QueueFile) == cfg.Store.QueueFile,
		"store.queue_file must be a file name, got %q", cfg.Store.QueueFile)
	check(strings.TrimSpace(cfg.Artifacts.Dir) != "", "artifacts.dir is required")

	check(cfg.Executor.MaxTasks > 0, "executor.max_tasks must be positive, got %d", cfg.Executor.MaxTasks)
	check(cfg.Executor.TaskTimeoutSec >= 0, "executor.task_timeout_sec must not be negative, got %d", cfg.Executor.TaskTimeoutSec)
	check(cfg.Executor.Workers >= 0, "executor.workers must not be negative, got %d", cfg.Executor.Workers)

	check(cfg.Runner.ScanIntervalSec > 0, "runner.scan_interval_sec must be positive, got %d", cfg.Runner.ScanIntervalSec)
	check(cfg.Runner.DebounceMs >= 0, "runner.debounce_ms must not be negative, got %d", cfg.Runner.DebounceMs)
	check(cfg.Runner.ShutdownTimeoutSec >= 0, "runner.shutdown_timeout_sec must not be negative, got %d", cfg.Runner.ShutdownTimeoutSec)

	switch cfg.Memory.Driver {
	case DriverSQLite:
		check(strings.TrimSpace(cfg.Memory.Path) != "", "memory.path is required for the sqlite driver")
	case DriverInProc:
	default:
		errs = append(errs, fmt.Errorf("memory.driver must be %q or %q, got %q", DriverSQLite, DriverInProc, cfg.Memory.Driver))
	}
	check(cfg.Memory.RecentWindow > 0, "memory.recent_window must be positive, got %d", cfg.Memory.RecentWindow)

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level is invalid: %q", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// QueuePath is the full path of the task queue file.
func QueuePath(cfg model.Config) string {
	return filepath.Join(cfg.Store.Dir, cfg.Store.QueueFile)
}

// LockPath is the runner's single-writer lock file.
func LockPath(cfg model.Config) string {
	return filepath.Join(cfg.Store.Dir, "locks", "runner.lock")
}

// SocketPath is the runner's control socket.
func SocketPath(cfg model.Config) string {
	return filepath.Join(cfg.Store.Dir, uds.DefaultSocketName)
}

// OutcomeLogPath is where per-task outcomes are appended.
func OutcomeLogPath(cfg model.Config) string {
	return filepath.Join(cfg.Store.Dir, "logs", "outcomes.jsonl")
}
