package rerun

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-rerun/flags"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
)

// configFromArgs parses args with the application flags and builds the config
func configFromArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, testlog.Logger(t, log.LevelInfo))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"op-rerun"}, args...)))
	return cfg, cfgErr
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := configFromArgs(t)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, cfg.TestDir)
	assert.Empty(t, cfg.Skiplist)
	assert.Empty(t, cfg.Passlist)
	assert.Empty(t, cfg.PlanFile)
	assert.Empty(t, cfg.LogDir)
	assert.Equal(t, tracker.DefaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, []string{"./..."}, cfg.Packages)
	assert.Equal(t, runner.DiscoveryList, cfg.Discovery)
	assert.Equal(t, runner.DefaultGoBinary, cfg.GoBinary)
	assert.False(t, cfg.ShowProgress)
	assert.False(t, cfg.Status.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestNewConfig_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	cfg, err := configFromArgs(t,
		"--testdir", dir,
		"--skiplist", "skip.txt",
		"--passlist", "pass.txt",
		"--plan", "plan.yaml",
		"--log-dir", "logs",
		"--flush-interval", "5s",
		"--discovery", "ast",
		"--packages", "./a/...", "--packages", "./b",
	)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.TestDir)
	assert.Equal(t, filepath.Join(wd, "skip.txt"), cfg.Skiplist)
	assert.Equal(t, filepath.Join(wd, "pass.txt"), cfg.Passlist)
	assert.Equal(t, filepath.Join(wd, "plan.yaml"), cfg.PlanFile)
	assert.Equal(t, filepath.Join(wd, "logs"), cfg.LogDir)
	assert.Equal(t, 5*time.Second, cfg.FlushInterval)
	assert.Equal(t, runner.DiscoveryAST, cfg.Discovery)
	assert.Equal(t, []string{"./a/...", "./b"}, cfg.Packages)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "empty test dir", args: []string{"--testdir", ""}},
		{name: "zero flush interval", args: []string{"--flush-interval", "0s"}},
		{name: "negative timeout", args: []string{"--timeout", "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configFromArgs(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestNewConfig_EnvVars(t *testing.T) {
	t.Setenv("OP_RERUN_PASSLIST", "/tmp/pass.txt")
	t.Setenv("OP_RERUN_SHOW_PROGRESS", "true")

	cfg, err := configFromArgs(t)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pass.txt", cfg.Passlist)
	assert.True(t, cfg.ShowProgress)
}
