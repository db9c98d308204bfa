package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-rerun/plan"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// PackageResult captures the results of one package
type PackageResult struct {
	Package  string
	Tests    []*types.TestResult // In collection order
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
}

// RunnerResult captures the complete test run results
type RunnerResult struct {
	RunID    string
	Packages []*PackageResult // In execution order
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
	LogDir   string // Raw output directory, empty when not stored
}

// ResultStats tracks test statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) add(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusSkip:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Reporter receives the report of every test phase
type Reporter interface {
	RecordReport(item tracker.Item, r tracker.Report) error
}

// Metricer records test run activity
type Metricer interface {
	RecordTestResult(status types.TestStatus, duration time.Duration)
	RecordRun(status types.TestStatus, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordTestResult(types.TestStatus, time.Duration) {}
func (noopMetrics) RecordRun(types.TestStatus, time.Duration)        {}

// TestRunner defines the interface for collecting and running tests
type TestRunner interface {
	Discover(ctx context.Context) ([]*types.TestItem, error)
	Run(ctx context.Context, items []*types.TestItem, reporter Reporter) (*RunnerResult, error)
}

// runner struct implements TestRunner interface
type runner struct {
	plan      *plan.Plan
	workDir   string
	discovery DiscoveryMode
	logDir    string
	log       log.Logger
	metrics   Metricer
	progress  ProgressIndicator
	executor  *testExecutor
	tracer    trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Plan      *plan.Plan
	WorkDir   string // Directory go test runs in
	GoBinary  string // Path to the Go binary
	Discovery DiscoveryMode
	LogDir    string // Raw go test output is stored here when set
	Log       log.Logger
	Metrics   Metricer
	Progress  ProgressIndicator
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	return newRunner(cfg)
}

func newRunner(cfg Config) (*runner, error) {
	if cfg.Plan == nil || len(cfg.Plan.Entries) == 0 {
		return nil, fmt.Errorf("plan is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Discovery == "" {
		cfg.Discovery = DiscoveryList
	}
	if !cfg.Discovery.IsValid() {
		return nil, fmt.Errorf("invalid discovery mode %q", cfg.Discovery)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}

	cfg.Log.Debug("NewTestRunner()", "workDir", cfg.WorkDir, "goBinary", cfg.GoBinary,
		"discovery", cfg.Discovery, "entries", len(cfg.Plan.Entries), "logDir", cfg.LogDir)

	return &runner{
		plan:      cfg.Plan,
		workDir:   cfg.WorkDir,
		discovery: cfg.Discovery,
		logDir:    cfg.LogDir,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		progress:  cfg.Progress,
		executor:  newTestExecutor(cfg.WorkDir, cfg.GoBinary, nil, cfg.Log),
		tracer:    otel.Tracer("test runner"),
	}, nil
}

// Run executes items package by package and hands every test's reports to
// reporter as they happen. A reporter error aborts the run. The partial result
// is returned alongside any error.
func (r *runner) Run(ctx context.Context, items []*types.TestItem, reporter Reporter) (*RunnerResult, error) {
	runID := uuid.New().String()
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	store := NewJSONStore(r.logDir, runID)
	r.executor.jsonStore = store

	result := &RunnerResult{
		RunID:  runID,
		Stats:  ResultStats{StartTime: start},
		LogDir: store.Dir(),
	}
	r.progress.StartRun(runID, len(items))
	r.log.Info("Running tests", "run_id", runID, "tests", len(items))

	var runErr error
	for _, group := range groupByPackage(items) {
		pkgResult, err := r.runPackage(ctx, group, reporter)
		if pkgResult != nil {
			result.Packages = append(result.Packages, pkgResult)
			for _, test := range pkgResult.Tests {
				result.Stats.add(test.Status)
			}
		}
		if err != nil {
			runErr = err
			break
		}
	}

	result.Duration = time.Since(start)
	result.Status = determineRunnerStatus(result)
	result.Stats.EndTime = time.Now()
	r.metrics.RecordRun(result.Status, result.Duration)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return result, runErr
}

type packageGroup struct {
	pkg   string
	items []*types.TestItem
}

// groupByPackage keeps the order in which packages are first seen
func groupByPackage(items []*types.TestItem) []*packageGroup {
	var groups []*packageGroup
	byPkg := make(map[string]*packageGroup)
	for _, item := range items {
		g, ok := byPkg[item.Package]
		if !ok {
			g = &packageGroup{pkg: item.Package}
			byPkg[item.Package] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, item)
	}
	return groups
}

func (r *runner) runPackage(ctx context.Context, group *packageGroup, reporter Reporter) (*PackageResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("package %s", group.pkg))
	defer span.End()

	start := time.Now()
	r.progress.StartPackage(group.pkg, len(group.items))
	defer r.progress.CompletePackage(group.pkg)

	results := make(map[*types.TestItem]*types.TestResult, len(group.items))
	var toRun []*types.TestItem
	var timeout time.Duration
	for _, item := range group.items {
		if !item.Skipped() {
			toRun = append(toRun, item)
			timeout = max(timeout, item.Timeout)
			continue
		}
		res := types.NewTestResult(item)
		res.Status = types.TestStatusSkip
		res.Error = tracker.NewSkipError(item.SkipReason)
		results[item] = res
		r.progress.UpdateTest(item.ID(), res.Status)
		r.metrics.RecordTestResult(res.Status, 0)
		if err := reporter.RecordReport(item, tracker.Report{Phase: tracker.PhaseSetup, Outcome: tracker.OutcomeSkipped, Err: res.Error}); err != nil {
			return r.packageResult(group, results, start), err
		}
	}

	var runErr error
	if len(toRun) > 0 {
		runErr = r.executePackage(ctx, group.pkg, toRun, timeout, reporter, results)
	}

	pkgResult := r.packageResult(group, results, start)
	span.SetAttributes(
		attribute.String("status", string(pkgResult.Status)),
		attribute.Int("tests", pkgResult.Stats.Total),
		attribute.Int("failed", pkgResult.Stats.Failed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	r.log.Info("Package completed", "package", group.pkg, "status", pkgResult.Status,
		"passed", pkgResult.Stats.Passed, "failed", pkgResult.Stats.Failed, "skipped", pkgResult.Stats.Skipped,
		"duration", pkgResult.Duration.Truncate(time.Millisecond))
	return pkgResult, runErr
}

// executePackage runs toRun in a single go test process. Every finished test
// is reported immediately; tests left without a result once the process is
// gone are reported as failed during setup.
func (r *runner) executePackage(ctx context.Context, pkg string, toRun []*types.TestItem, timeout time.Duration, reporter Reporter, results map[*types.TestItem]*types.TestResult) error {
	run := newPackageRun(pkg, toRun, r.progress)
	names := make([]string, len(toRun))
	for i, item := range toRun {
		names[i] = item.Name
	}

	deliver := func(p *pendingReport) error {
		res := run.results[p.item.Name]
		r.metrics.RecordTestResult(res.Status, res.Duration)
		if res.Status == types.TestStatusFail {
			r.log.Warn("Test failed", "test", p.item.ID(), "err", res.Error)
		}
		return reporter.RecordReport(p.item, p.report)
	}

	var reporterErr error
	execErr := r.executor.execute(ctx, pkg, names, timeout, func(event TestEvent) error {
		if p := run.handle(event); p != nil {
			if err := deliver(p); err != nil {
				reporterErr = err
				return err
			}
		}
		return nil
	})

	for _, res := range run.resultList() {
		results[res.Item] = res
	}

	if reporterErr != nil {
		return reporterErr
	}
	if execErr != nil && isCancellation(ctx, execErr) {
		return execErr
	}
	for _, p := range run.finish(execErr) {
		if err := deliver(p); err != nil {
			return err
		}
	}
	return execErr
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (r *runner) packageResult(group *packageGroup, results map[*types.TestItem]*types.TestResult, start time.Time) *PackageResult {
	pkgResult := &PackageResult{
		Package:  group.pkg,
		Duration: time.Since(start),
		Stats:    ResultStats{StartTime: start, EndTime: time.Now()},
	}
	for _, item := range group.items {
		res, ok := results[item]
		if !ok {
			continue
		}
		pkgResult.Tests = append(pkgResult.Tests, res)
		pkgResult.Stats.add(res.Status)
	}
	pkgResult.Status = determinePackageStatus(pkgResult)
	return pkgResult
}

// determinePackageStatus determines the overall status of a package based on its tests
func determinePackageStatus(pkg *PackageResult) types.TestStatus {
	if len(pkg.Tests) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false

	for _, test := range pkg.Tests {
		if test.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if test.Status == types.TestStatusFail {
			anyFailed = true
		}
	}

	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineRunnerStatus determines the overall status of the test run
func determineRunnerStatus(result *RunnerResult) types.TestStatus {
	if len(result.Packages) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false

	for _, pkg := range result.Packages {
		if pkg.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if pkg.Status == types.TestStatusFail {
			anyFailed = true
		}
	}

	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineStatusFromFlags is a helper that returns a status based on common flag logic
func determineStatusFromFlags(allSkipped, anyFailed bool) types.TestStatus {
	if allSkipped {
		return types.TestStatusSkip
	}
	if anyFailed {
		return types.TestStatusFail
	}
	return types.TestStatusPass
}

func (r *RunnerResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Test Run Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped))

	for _, pkg := range r.Packages {
		if pkg.Stats.Failed == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("\nPackage: %s (%s)\n", pkg.Package, formatDuration(pkg.Duration)))
		for _, test := range pkg.Tests {
			if test.Status != types.TestStatusFail {
				continue
			}
			b.WriteString(fmt.Sprintf("├── Test: %s (%s) [status=%s]\n", test.Name, formatDuration(test.Duration), test.Status))
			if test.Error != nil {
				b.WriteString(fmt.Sprintf("│       └── Error: %s\n", firstLine(test.Error.Error())))
			}
			for _, name := range sortedSubTests(test) {
				sub := test.SubTests[name]
				if sub.Status == types.TestStatusFail {
					b.WriteString(fmt.Sprintf("│   └── %s [status=%s]\n", name, sub.Status))
				}
			}
		}
	}
	return b.String()
}

// sortedSubTests returns the subtest names of test in a stable order
func sortedSubTests(test *types.TestResult) []string {
	names := make([]string, 0, len(test.SubTests))
	for name := range test.SubTests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx != -1 {
		return s[:idx]
	}
	return s
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Make sure the runner type implements the interface
var _ TestRunner = &runner{}
