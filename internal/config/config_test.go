package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
	"github.com/Wbcubazo/Multiday-mini/internal/plan"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, plan.DefaultGoal, cfg.Planner.DefaultGoal)
	assert.Equal(t, DriverSQLite, cfg.Memory.Driver)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesKeepOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  dir: /var/lib/multiday
executor:
  max_tasks: 3
  workers: 4
memory:
  driver: inproc
planner:
  publish_agent: Shipper
logging:
  level: debug
  compress: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/multiday", cfg.Store.Dir)
	assert.Equal(t, "tasks_queue.yaml", cfg.Store.QueueFile)
	assert.Equal(t, 3, cfg.Executor.MaxTasks)
	assert.Equal(t, 4, cfg.Executor.Workers)
	assert.Equal(t, 300, cfg.Executor.TaskTimeoutSec)
	assert.Equal(t, DriverInProc, cfg.Memory.Driver)
	assert.Equal(t, "Shipper", cfg.Planner.PublishAgent)
	assert.Equal(t, plan.DefaultContentAgent, cfg.Planner.ContentAgent)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Compress)

	assert.Equal(t, filepath.Join("/var/lib/multiday", "tasks_queue.yaml"), QueuePath(cfg))
	assert.Equal(t, filepath.Join("/var/lib/multiday", "locks", "runner.lock"), LockPath(cfg))
	assert.Equal(t, filepath.Join("/var/lib/multiday", "logs", "outcomes.jsonl"), OutcomeLogPath(cfg))
	assert.Equal(t, filepath.Join("/var/lib/multiday", "runner.sock"), SocketPath(cfg))
	assert.True(t, cfg.Runner.ControlSocket)
	assert.True(t, cfg.Logging.OutcomeChecksum)
}

func TestLoad_DisableControlSocket(t *testing.T) {
	cfg, err := Load(writeConfig(t, "runner:\n  control_socket: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Runner.ControlSocket)
	assert.Equal(t, 60, cfg.Runner.ScanIntervalSec)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "executor: [unclosed"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, `
executor:
  max_tasks: 0
memory:
  driver: redis
logging:
  level: loud
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "executor.max_tasks")
	assert.Contains(t, msg, "memory.driver")
	assert.Contains(t, msg, "logging.level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *model.Config)
		wantErr string
	}{
		{"queue file with dir", func(c *model.Config) { c.Store.QueueFile = "sub/q.yaml" }, "store.queue_file"},
		{"negative timeout", func(c *model.Config) { c.Executor.TaskTimeoutSec = -1 }, "task_timeout_sec"},
		{"negative workers", func(c *model.Config) { c.Executor.Workers = -2 }, "executor.workers"},
		{"zero scan interval", func(c *model.Config) { c.Runner.ScanIntervalSec = 0 }, "scan_interval_sec"},
		{"sqlite without path", func(c *model.Config) { c.Memory.Path = "" }, "memory.path"},
		{"zero window", func(c *model.Config) { c.Memory.RecentWindow = 0 }, "recent_window"},
		{"empty artifacts dir", func(c *model.Config) { c.Artifacts.Dir = " " }, "artifacts.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	inproc := Default()
	inproc.Memory.Driver = DriverInProc
	inproc.Memory.Path = ""
	assert.NoError(t, Validate(inproc))
}
