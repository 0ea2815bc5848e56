// Package model defines the task record, execution outcomes and configuration.
package model

type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Executor  ExecutorConfig  `yaml:"executor" mapstructure:"executor"`
	Runner    RunnerConfig    `yaml:"runner" mapstructure:"runner"`
	Memory    MemoryConfig    `yaml:"memory" mapstructure:"memory"`
	Planner   PlannerConfig   `yaml:"planner" mapstructure:"planner"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

type StoreConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	QueueFile string `yaml:"queue_file" mapstructure:"queue_file"`
}

type ArtifactsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type ExecutorConfig struct {
	MaxTasks       int `yaml:"max_tasks" mapstructure:"max_tasks"`
	TaskTimeoutSec int `yaml:"task_timeout_sec" mapstructure:"task_timeout_sec"` // 0 = no deadline
	Workers        int `yaml:"workers" mapstructure:"workers"`                   // <= 1 runs sequentially
}

type RunnerConfig struct {
	ScanIntervalSec    int  `yaml:"scan_interval_sec" mapstructure:"scan_interval_sec"`
	DebounceMs         int  `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	ShutdownTimeoutSec int  `yaml:"shutdown_timeout_sec" mapstructure:"shutdown_timeout_sec"`
	ControlSocket      bool `yaml:"control_socket" mapstructure:"control_socket"` // <store.dir>/runner.sock
}

type MemoryConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"` // sqlite | inproc
	Path         string `yaml:"path" mapstructure:"path"`
	RecentWindow int    `yaml:"recent_window" mapstructure:"recent_window"`
}

type PlannerConfig struct {
	DefaultGoal   string `yaml:"default_goal" mapstructure:"default_goal"`
	FallbackTopic string `yaml:"fallback_topic" mapstructure:"fallback_topic"`
	FromAgent     string `yaml:"from_agent" mapstructure:"from_agent"`
	ContentAgent  string `yaml:"content_agent" mapstructure:"content_agent"`
	PublishAgent  string `yaml:"publish_agent" mapstructure:"publish_agent"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`

	// OutcomeChecksum stamps each outcome log record with a checksum.
	OutcomeChecksum bool `yaml:"outcome_checksum" mapstructure:"outcome_checksum"`
}
