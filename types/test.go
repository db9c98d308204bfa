// Package types contains shared types used across op-rerun
package types

import (
	"strings"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// TestResult captures the outcome of a single test run
type TestResult struct {
	Item     *TestItem
	Name     string        // Full test name, including the parent for subtests
	Status   TestStatus
	Error    error
	Duration time.Duration
	SubTests map[string]*TestResult // Subtests keyed by their full name
	Stdout   string                 // Captured output for failing tests

	Depth int // Nesting depth (0=top-level, 1=first subtest, etc.)
}

// NewTestResult creates a passing result for item with no subtests yet.
func NewTestResult(item *TestItem) *TestResult {
	r := &TestResult{
		Item:     item,
		Name:     item.Name,
		Status:   TestStatusPass,
		SubTests: make(map[string]*TestResult),
	}
	r.SetHierarchyFromTestName(item.Name)
	return r
}

// SetHierarchyFromTestName sets the nesting depth by parsing a test name
func (tr *TestResult) SetHierarchyFromTestName(testName string) {
	tr.Depth, _ = ParseTestNameHierarchy(testName)
}

// ParseTestNameHierarchy parses a Go test name and extracts hierarchy information
// Handles names like "TestParent/SubTest1/SubSubTest2"
// Returns depth (0=top-level, 1=first subtest, etc.) and the full hierarchy path
func ParseTestNameHierarchy(testName string) (depth int, path []string) {
	if testName == "" {
		return 0, []string{}
	}

	cleanPath := make([]string, 0, strings.Count(testName, "/")+1)
	for _, element := range strings.Split(testName, "/") {
		if element != "" {
			cleanPath = append(cleanPath, element)
		}
	}

	if len(cleanPath) == 0 {
		return 0, []string{}
	}
	return len(cleanPath) - 1, cleanPath
}

// RootTestName returns the top-level test a (sub)test name belongs to.
func RootTestName(testName string) string {
	_, path := ParseTestNameHierarchy(testName)
	if len(path) == 0 {
		return ""
	}
	return path[0]
}
