package rerun

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// printResultsTable prints the results of the last run.
func (r *rerun) printResultsTable(w io.Writer) {
	if r.result == nil {
		return
	}
	r.config.Log.Info("Printing results...")
	renderResultsTable(w, r.result)
}

func renderResultsTable(w io.Writer, result *runner.RunnerResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, pkg := range result.Packages {
		t.AppendRow(table.Row{
			"Package",
			pkg.Package,
			formatDuration(pkg.Duration),
			"-", // Don't count a package as a test
			pkg.Stats.Passed,
			pkg.Stats.Failed,
			pkg.Stats.Skipped,
			getResultString(pkg.Status),
			"",
		})

		for i, test := range pkg.Tests {
			prefix := "├──"
			subIndent := "│   "
			if i == len(pkg.Tests)-1 {
				prefix = "└──"
				subIndent = "    "
			}
			t.AppendRow(testRow("Test", prefix+" "+test.Name, test))

			names := make([]string, 0, len(test.SubTests))
			for name := range test.SubTests {
				names = append(names, name)
			}
			sort.Strings(names)
			for j, name := range names {
				sub := test.SubTests[name]
				// nested subtests are indented one level per depth below the first
				indent := subIndent + strings.Repeat("    ", max(sub.Depth-1, 0))
				subPrefix := indent + "├──"
				if j == len(names)-1 {
					subPrefix = indent + "└──"
				}
				t.AppendRow(testRow("", subPrefix+" "+name, sub))
			}
		}
		t.AppendSeparator()
	}

	switch result.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		getResultString(result.Status),
		"",
	})

	t.Render()
}

func testRow(kind, id string, test *types.TestResult) table.Row {
	return table.Row{
		kind,
		id,
		formatDuration(test.Duration),
		"1",
		boolToInt(test.Status == types.TestStatusPass),
		boolToInt(test.Status == types.TestStatusFail),
		boolToInt(test.Status == types.TestStatusSkip),
		getResultString(test.Status),
		extractKeyErrorMessage(test.Error),
	}
}

// errorMarkers are searched in order; the line holding the first match is shown
var errorMarkers = []string{
	"panic:",
	"Error:",
	"expected",
	"Expected",
	"got:",
	"want:",
	"Fatal:",
	"Failed:",
}

// extractKeyErrorMessage extracts the most pertinent part of the error message for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	for _, marker := range errorMarkers {
		idx := strings.Index(errStr, marker)
		if idx == -1 {
			continue
		}
		end := len(errStr)
		if newLine := strings.Index(errStr[idx:], "\n"); newLine != -1 {
			end = idx + newLine
		}
		if line := strings.TrimSpace(errStr[idx:end]); line != "" {
			return line
		}
	}

	// If we can't find a specific pattern, limit to the first line or 80 chars
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		return errStr[:idx]
	} else if len(errStr) > 80 {
		return errStr[:70] + "..."
	}
	return errStr
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
