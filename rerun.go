package rerun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-rerun/exitcodes"
	"github.com/ethereum-optimism/infra/op-rerun/metrics"
	"github.com/ethereum-optimism/infra/op-rerun/plan"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/service"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// rerun implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &rerun{}

// rerun runs one test session, skipping what a previous session already
// passed and recording what passes in this one.
type rerun struct {
	config   *Config
	version  string
	runner   runner.TestRunner
	metrics  *metrics.Metrics
	progress runner.ProgressIndicator
	service  *service.Service
	result   *runner.RunnerResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*rerun, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating op-rerun with config",
		"testDir", config.TestDir,
		"skiplist", config.Skiplist,
		"passlist", config.Passlist,
		"flushInterval", config.FlushInterval,
		"plan", config.PlanFile,
		"discovery", config.Discovery)

	p, err := plan.Load(plan.Config{
		Log:            config.Log,
		File:           config.PlanFile,
		Packages:       config.Packages,
		DefaultTimeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	m := metrics.NewMetrics()

	// progress is always tracked for the status endpoint, only logged on demand
	var progressInterval time.Duration
	if config.ShowProgress {
		progressInterval = config.ProgressInterval
	}
	progress := runner.NewConsoleProgressIndicator(config.Log, progressInterval)

	svc := service.New(config.Log, service.Config{
		Status:   config.Status,
		Metrics:  config.Metrics,
		Registry: m.Registry(),
	}, progress)

	testRunner, err := runner.NewTestRunner(runner.Config{
		Plan:      p,
		WorkDir:   config.TestDir,
		GoBinary:  config.GoBinary,
		Discovery: config.Discovery,
		LogDir:    config.LogDir,
		Log:       config.Log,
		Metrics:   m,
		Progress:  progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Info("rerun.New: created plan and test runner", "entries", len(p.Entries))

	return &rerun{
		config:           config,
		version:          version,
		runner:           testRunner,
		metrics:          m,
		progress:         progress,
		service:          svc,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the session to completion.
// Start implements the cliapp.Lifecycle interface.
func (r *rerun) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Log.Error("Runtime error occurred", "error", rec)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	r.running.Store(true)
	r.config.Log.Info("Starting op-rerun", "version", r.version)

	if err := r.service.Start(ctx); err != nil {
		return NewRuntimeError(err)
	}

	if err := r.runSession(ctx); err != nil {
		if IsTestFailureError(err) {
			r.config.Log.Warn("Test run completed with failures, returning exit code 1")
		} else {
			r.config.Log.Error("Runtime error running tests", "error", err)
		}
		return err
	}

	// all tests passed or were skipped
	go func() {
		r.shutdownCallback(nil)
	}()
	return nil
}

// runSession drives the tracker hooks around the run. Finish always runs once
// the session exists, with the exit status the run is about to report.
func (r *rerun) runSession(ctx context.Context) (err error) {
	session := tracker.NewSession(tracker.Config{
		Skiplist:      r.config.Skiplist,
		Passlist:      r.config.Passlist,
		FlushInterval: r.config.FlushInterval,
		Metrics:       r.metrics,
		Log:           r.config.Log,
	})
	defer func() {
		if ferr := session.Finish(ExitCode(err)); ferr != nil {
			r.metrics.RecordErrorDetails("finish", ferr)
			err = errors.Join(err, NewRuntimeError(ferr))
		}
	}()

	items, err := r.runner.Discover(ctx)
	if err != nil {
		r.metrics.RecordErrorDetails("discover", err)
		return NewRuntimeError(fmt.Errorf("failed to collect tests: %w", err))
	}

	if err := session.ModifyItems(types.TrackerItems(items)); err != nil {
		r.metrics.RecordErrorDetails("skiplist", err)
		return NewRuntimeError(err)
	}

	result, err := r.runner.Run(ctx, items, session)
	r.result = result
	if err != nil {
		r.metrics.RecordErrorDetails("run", err)
		return NewRuntimeError(fmt.Errorf("failed to run tests: %w", err))
	}

	r.printResultsTable(os.Stdout)
	fmt.Println(result.String())
	r.config.Log.Info("Test run completed",
		"run_id", result.RunID,
		"status", result.Status,
		"passlistPending", session.Pending(),
		"logDir", result.LogDir)

	if result.Status == types.TestStatusFail {
		return NewTestFailureError(result.String())
	}
	return nil
}

// Stop stops the op-rerun service.
// Stop implements the cliapp.Lifecycle interface.
func (r *rerun) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-rerun")

	// Check if we're already stopped
	if !r.running.Swap(false) {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	r.progress.Stop()
	if err := r.service.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	r.config.Log.Info("op-rerun stopped successfully")
	return nil
}

// Stopped returns true if the op-rerun service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (r *rerun) Stopped() bool {
	return !r.running.Load()
}

// Result returns the result of the last run, nil before a run finished.
func (r *rerun) Result() *runner.RunnerResult {
	return r.result
}
