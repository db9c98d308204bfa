package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-rerun/tracker"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// TestEvent represents a single event from the go test JSON output
type TestEvent struct {
	Time        time.Time // Time the event occurred
	Action      string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package     string    // The package being tested
	Test        string    // The test function name (may be empty for package events)
	Output      string    // Output text (may be empty)
	Elapsed     float64   // Elapsed time in seconds for the specific action
	ImportPath  string    // Set on build events
	FailedBuild string    // Set on the package fail event when the build failed
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// pendingReport is a tracker report waiting to be delivered for item.
type pendingReport struct {
	item   *types.TestItem
	report tracker.Report
}

// packageRun follows the events of one go test -json invocation.
type packageRun struct {
	pkg      string
	items    map[string]*types.TestItem // selected top-level tests by name
	order    []string
	results  map[string]*types.TestResult
	output   map[string]*strings.Builder
	done     map[string]bool
	started  map[string]bool // top-level tests that emitted their own run event
	failed   bool
	pkgOut   strings.Builder
	progress ProgressIndicator
}

func newPackageRun(pkg string, items []*types.TestItem, progress ProgressIndicator) *packageRun {
	if progress == nil {
		progress = NewNoOpProgressIndicator()
	}
	p := &packageRun{
		pkg:      pkg,
		items:    make(map[string]*types.TestItem, len(items)),
		results:  make(map[string]*types.TestResult, len(items)),
		output:   make(map[string]*strings.Builder, len(items)),
		done:     make(map[string]bool, len(items)),
		started:  make(map[string]bool, len(items)),
		progress: progress,
	}
	for _, item := range items {
		p.items[item.Name] = item
		p.order = append(p.order, item.Name)
		p.results[item.Name] = types.NewTestResult(item)
		p.output[item.Name] = &strings.Builder{}
	}
	return p
}

// handle processes one event. When a selected top-level test finishes it returns
// the report to hand to the tracker.
func (p *packageRun) handle(event TestEvent) *pendingReport {
	switch {
	case event.Action == ActionBuildOutput:
		p.pkgOut.WriteString(event.Output)
		return nil
	case event.Package != "" && event.Package != p.pkg:
		return nil
	case event.Test == "":
		p.handlePackageEvent(event)
		return nil
	}

	root := types.RootTestName(event.Test)
	item, ok := p.items[root]
	if !ok || p.done[root] {
		return nil
	}

	if event.Action == ActionOutput {
		p.output[root].WriteString(event.Output)
	}
	if event.Test != root {
		p.handleSubTestEvent(event, root)
		return nil
	}

	result := p.results[root]
	switch event.Action {
	case ActionRun:
		p.started[root] = true
		p.progress.StartTest(item.ID())
		return nil
	case ActionPass:
		result.Status = types.TestStatusPass
	case ActionFail:
		result.Status = types.TestStatusFail
		result.Error = outputError(p.output[root].String())
		result.Stdout = p.output[root].String()
	case ActionSkip:
		result.Status = types.TestStatusSkip
		result.Error = tracker.NewSkipError(skipReason(p.output[root].String()))
		result.Stdout = p.output[root].String()
	default:
		return nil
	}

	result.Duration = elapsed(event)
	p.done[root] = true
	p.progress.UpdateTest(item.ID(), result.Status)
	return &pendingReport{item: item, report: callReport(result)}
}

func (p *packageRun) handlePackageEvent(event TestEvent) {
	switch event.Action {
	case ActionOutput:
		p.pkgOut.WriteString(event.Output)
	case ActionFail:
		p.failed = true
	}
}

func (p *packageRun) handleSubTestEvent(event TestEvent, root string) {
	parent := p.results[root]
	sub, ok := parent.SubTests[event.Test]
	if !ok {
		sub = &types.TestResult{
			Item:     parent.Item,
			Name:     event.Test,
			Status:   types.TestStatusPass,
			SubTests: make(map[string]*types.TestResult),
		}
		sub.SetHierarchyFromTestName(event.Test)
		parent.SubTests[event.Test] = sub
	}

	switch event.Action {
	case ActionPass:
		sub.Status = types.TestStatusPass
		sub.Duration = elapsed(event)
	case ActionFail:
		sub.Status = types.TestStatusFail
		sub.Duration = elapsed(event)
	case ActionSkip:
		sub.Status = types.TestStatusSkip
		sub.Duration = elapsed(event)
	case ActionOutput:
		sub.Stdout += event.Output
	}
}

// finish closes the run once the process exited: selected tests that never
// reported a result are failed as if their setup had failed. cause is the
// process error, if any.
func (p *packageRun) finish(cause error) []*pendingReport {
	var reports []*pendingReport
	for _, name := range p.order {
		if p.done[name] {
			continue
		}
		item := p.items[name]
		result := p.results[name]
		result.Status = types.TestStatusFail
		result.Error = p.incompleteError(name, cause)
		result.Stdout = p.output[name].String()
		p.done[name] = true
		p.progress.UpdateTest(item.ID(), result.Status)

		reports = append(reports, &pendingReport{
			item: item,
			report: tracker.Report{
				Phase:   tracker.PhaseSetup,
				Outcome: tracker.OutcomeFailed,
				Err:     result.Error,
			},
		})
	}
	return reports
}

func (p *packageRun) incompleteError(name string, cause error) error {
	var msg string
	switch {
	case p.started[name]:
		msg = "test did not complete"
	case len(p.started) == 0 && p.failed:
		msg = "package failed before running tests"
	default:
		msg = "test was not run"
	}
	var errs []error
	errs = append(errs, errors.New(msg))
	if out := cleanOutput(p.pkgOut.String()); out != "" {
		errs = append(errs, fmt.Errorf("%s", out))
	}
	if cause != nil {
		errs = append(errs, cause)
	}
	return errors.Join(errs...)
}

// resultList returns the results in selection order.
func (p *packageRun) resultList() []*types.TestResult {
	out := make([]*types.TestResult, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.results[name])
	}
	return out
}

func callReport(result *types.TestResult) tracker.Report {
	r := tracker.Report{Phase: tracker.PhaseCall, Err: result.Error}
	switch result.Status {
	case types.TestStatusPass:
		r.Outcome = tracker.OutcomePassed
	case types.TestStatusSkip:
		r.Outcome = tracker.OutcomeSkipped
	default:
		r.Outcome = tracker.OutcomeFailed
	}
	return r
}

func elapsed(event TestEvent) time.Duration {
	if event.Elapsed <= 0 {
		return 0
	}
	return time.Duration(event.Elapsed * float64(time.Second))
}

// cleanOutput strips colors and go test's own framing lines from output.
func cleanOutput(output string) string {
	var lines []string
	for _, line := range strings.Split(stripansi.Strip(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isFramingLine(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isFramingLine(line string) bool {
	if line == "PASS" || line == "FAIL" {
		return true
	}
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS:", "--- FAIL:", "--- SKIP:", "FAIL\t", "ok  \t", "?   \t"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func outputError(output string) error {
	if out := cleanOutput(output); out != "" {
		return fmt.Errorf("%s", out)
	}
	return errors.New("test failed")
}

func skipReason(output string) string {
	return strings.ReplaceAll(cleanOutput(output), "\n", "; ")
}
