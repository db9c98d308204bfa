package main_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-rerun/exitcodes"
)

const (
	passingTest = `package test

import "testing"

func TestAlwaysPasses(t *testing.T) {}
`
	failingTest = `package test

import "testing"

func TestAlwaysPasses(t *testing.T) {}

func TestAlwaysFails(t *testing.T) {
	t.Fail()
}
`
	panickingTest = `package test

import "testing"

func TestExplicitPanic(t *testing.T) {
	panic("This test explicitly panics")
}
`
)

// TestExitCodeBehavior verifies that op-rerun returns the correct exit codes:
// - Exit code 0 when all tests pass
// - Exit code 1 when any tests fail
// - Exit code 2 when there's a runtime error
func TestExitCodeBehavior(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping binary test in short mode")
	}
	bin := buildBinary(t)

	testCases := []struct {
		name           string
		testFile       string
		extraArgs      func(t *testing.T) []string
		expectedStatus int
		expectedPassed []string
	}{
		{
			name:           "Passing tests should exit with code 0",
			testFile:       passingTest,
			expectedStatus: exitcodes.Success,
			expectedPassed: []string{"test/pkg.TestAlwaysPasses"},
		},
		{
			name:           "Failing tests should exit with code 1",
			testFile:       failingTest,
			expectedStatus: exitcodes.TestFailure,
			expectedPassed: []string{"test/pkg.TestAlwaysPasses"},
		},
		{
			// Go's test framework catches panics and treats them as test failures
			name:           "Test with panic should exit with code 1",
			testFile:       panickingTest,
			expectedStatus: exitcodes.TestFailure,
		},
		{
			name:     "Missing skiplist should exit with code 2",
			testFile: passingTest,
			extraArgs: func(t *testing.T) []string {
				return []string{"--skiplist=" + filepath.Join(t.TempDir(), "missing.txt")}
			},
			expectedStatus: exitcodes.RuntimeErr,
		},
		{
			name:     "Skipping every test should exit with code 0",
			testFile: failingTest,
			extraArgs: func(t *testing.T) []string {
				skiplist := filepath.Join(t.TempDir(), "skiplist.txt")
				writeFile(t, skiplist, "test/pkg.TestAlwaysPasses\ntest/pkg.TestAlwaysFails\n")
				return []string{"--skiplist=" + skiplist}
			},
			expectedStatus: exitcodes.Success,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testDir := createMockModule(t, tc.testFile)
			passlist := filepath.Join(t.TempDir(), "passlist.txt")

			args := []string{"--testdir=" + testDir, "--passlist=" + passlist}
			if tc.extraArgs != nil {
				args = append(args, tc.extraArgs(t)...)
			}
			exitCode := runOpRerun(t, bin, args...)
			require.Equal(t, tc.expectedStatus, exitCode, "Unexpected exit code")

			// Finish runs on every exit path, so the passlist always exists
			data, err := os.ReadFile(passlist)
			require.NoError(t, err)
			var passed []string
			if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
				passed = strings.Split(trimmed, "\n")
			}
			assert.Equal(t, tc.expectedPassed, passed)
		})
	}
}

// buildBinary builds op-rerun into a temporary directory
func buildBinary(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err, "Failed to get current directory")

	binaryPath := filepath.Join(t.TempDir(), "op-rerun")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	buildCmd.Dir = wd
	var buildOutput bytes.Buffer
	buildCmd.Stdout = &buildOutput
	buildCmd.Stderr = &buildOutput
	if err := buildCmd.Run(); err != nil {
		t.Logf("Build output:\n%s", buildOutput.String())
		t.Fatalf("Failed to build op-rerun binary: %v", err)
	}
	return binaryPath
}

// createMockModule creates a module "test" holding one package with the given test file
func createMockModule(t *testing.T, testContent string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module test\n\ngo 1.21\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	writeFile(t, filepath.Join(dir, "pkg", "pkg_test.go"), testContent)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write file: %s", path)
}

// runOpRerun runs the binary and returns its exit code
func runOpRerun(t *testing.T, binary string, args ...string) int {
	t.Logf("Running op-rerun %s", strings.Join(args, " "))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	execCmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	if stdout.Len() > 0 {
		t.Logf("stdout:\n%s", stdout.String())
	}
	if stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Logf("Command timed out")
		return exitcodes.RuntimeErr
	}
	if err == nil {
		return exitcodes.Success
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return exitcodes.RuntimeErr
}
