package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-rerun/plan"
	"github.com/ethereum-optimism/infra/op-rerun/testlist"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// maxConcurrentDiscovery bounds the number of go test -list processes
const maxConcurrentDiscovery = 4

// Discover collects the top-level tests of every plan entry. Items keep plan
// order and, within an entry, the order reported by the discovery mode. A test
// reachable from several entries is collected once, with the first entry's
// timeout.
func (r *runner) Discover(ctx context.Context) ([]*types.TestItem, error) {
	ctx, span := r.tracer.Start(ctx, "discover")
	defer span.End()

	perEntry := make([][]*types.TestItem, len(r.plan.Entries))
	p := pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(maxConcurrentDiscovery).
		WithContext(ctx).
		WithCancelOnError()
	for i, entry := range r.plan.Entries {
		p.Go(func(ctx context.Context) error {
			items, err := r.discoverEntry(ctx, entry)
			if err != nil {
				return fmt.Errorf("failed to discover tests in %s: %w", entry.Pattern, err)
			}
			perEntry[i] = items
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var items []*types.TestItem
	for _, entryItems := range perEntry {
		for _, item := range entryItems {
			if _, ok := seen[item.ID()]; ok {
				continue
			}
			seen[item.ID()] = struct{}{}
			items = append(items, item)
		}
	}

	r.log.Info("Discovered tests", "entries", len(r.plan.Entries), "tests", len(items), "mode", r.discovery)
	return items, nil
}

func (r *runner) discoverEntry(ctx context.Context, entry plan.Entry) ([]*types.TestItem, error) {
	var tests []testlist.Test
	var err error
	switch r.discovery {
	case DiscoveryAST:
		tests, err = testlist.FindTests(entry.Pattern, r.workDir)
	default:
		tests, err = r.listTests(ctx, entry.Pattern)
	}
	if err != nil {
		return nil, err
	}

	items := make([]*types.TestItem, 0, len(tests))
	for _, test := range tests {
		items = append(items, &types.TestItem{
			Package: test.Package,
			Name:    test.Name,
			Timeout: entry.Timeout,
		})
	}
	r.log.Debug("Discovered entry", "pattern", entry.Pattern, "tests", len(items))
	return items, nil
}

// listTests asks go test -list for the tests matching pattern
func (r *runner) listTests(ctx context.Context, pattern string) ([]testlist.Test, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	cmd, cleanup := r.executor.cmdBuilder(ctx, r.executor.goBinary, TestCommand, JSONFlag, TestListCommand, ListPattern, pattern)
	defer cleanup()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("Listing tests", "pattern", pattern, "command", cmd.String())
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("listing tests timed out after %v", ListTimeout)
		}
		return nil, fmt.Errorf("command error: %w\n%s", err, listFailureOutput(stdout.Bytes(), stderr.String()))
	}

	return parseTestList(stdout.Bytes())
}

// parseTestList extracts the test names from go test -json -list output
func parseTestList(output []byte) ([]testlist.Test, error) {
	var tests []testlist.Test
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		event, err := parseTestEvent(line)
		if err != nil {
			return nil, fmt.Errorf("unexpected list output %q: %w", line, err)
		}
		if event.Action != ActionOutput || event.Test != "" {
			continue
		}
		name := strings.TrimSpace(event.Output)
		if !testlist.IsTestName(name) {
			continue
		}
		tests = append(tests, testlist.Test{Package: event.Package, Name: name})
	}
	return tests, scanner.Err()
}

// listFailureOutput gathers what go printed about a failed listing
func listFailureOutput(stdout []byte, stderr string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		event, err := parseTestEvent(scanner.Bytes())
		if err != nil {
			out.WriteString(scanner.Text() + "\n")
			continue
		}
		if event.Action == ActionOutput || event.Action == ActionBuildOutput {
			out.WriteString(event.Output)
		}
	}
	out.WriteString(stderr)
	return cleanOutput(out.String())
}
