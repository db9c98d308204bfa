package rerun

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-rerun/flags"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/service"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
)

// Config holds the application configuration
type Config struct {
	TestDir          string               // Module directory go test runs in
	Skiplist         string               // Skiplist file, empty disables skipping
	Passlist         string               // Passlist file, empty disables recording
	FlushInterval    time.Duration        // Minimum time between periodic passlist flushes
	PlanFile         string               // Optional plan file
	Packages         []string             // Package patterns used without a plan file
	Discovery        runner.DiscoveryMode // How tests are collected
	GoBinary         string
	Timeout          time.Duration // Default timeout of a package run
	LogDir           string        // Directory for raw go test output, empty disables it
	ShowProgress     bool          // Whether to show periodic progress updates during test execution
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'
	Status           service.StatusConfig
	Metrics          opmetrics.CLIConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}

	discovery := runner.DiscoveryMode(ctx.String(flags.Discovery.Name))
	if !discovery.IsValid() {
		return nil, fmt.Errorf("invalid discovery mode %q. Must be one of: %s, %s",
			discovery, runner.DiscoveryList, runner.DiscoveryAST)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	lists := tracker.ConfigFromOptions(ctx)
	cfg := &Config{
		Skiplist:         lists.Skiplist,
		Passlist:         lists.Passlist,
		FlushInterval:    ctx.Duration(flags.FlushInterval.Name),
		PlanFile:         ctx.String(flags.Plan.Name),
		Packages:         ctx.StringSlice(flags.Packages.Name),
		Discovery:        discovery,
		GoBinary:         ctx.String(flags.GoBinary.Name),
		Timeout:          ctx.Duration(flags.Timeout.Name),
		LogDir:           ctx.String(flags.LogDir.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Status: service.StatusConfig{
			Enabled:    ctx.Bool(flags.StatusEnabled.Name),
			ListenAddr: ctx.String(flags.StatusAddr.Name),
			ListenPort: ctx.Int(flags.StatusPort.Name),
		},
		Metrics: metricsCfg,
		Log:     log,
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %v", cfg.FlushInterval)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %v", cfg.Timeout)
	}

	// Resolve the absolute paths
	var err error
	if cfg.TestDir, err = absPath(testDir); err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}
	for _, p := range []*string{&cfg.Skiplist, &cfg.Passlist, &cfg.PlanFile, &cfg.LogDir} {
		abs, err := absPath(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for '%s': %w", *p, err)
		}
		*p = abs
	}

	return cfg, nil
}

// absPath resolves p, keeping an empty path empty
func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}
