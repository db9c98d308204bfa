package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

// cmdBuilder creates the command for a go invocation. The returned func
// releases anything the command needed.
type cmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// testExecutor runs go test processes and streams their JSON events.
type testExecutor struct {
	workDir    string
	goBinary   string
	cmdBuilder cmdBuilder
	jsonStore  JSONStore
	log        log.Logger
}

func newTestExecutor(workDir, goBinary string, jsonStore JSONStore, logger log.Logger) *testExecutor {
	if goBinary == "" {
		goBinary = DefaultGoBinary
	}
	if jsonStore == nil {
		jsonStore = NewJSONStore("", "")
	}
	e := &testExecutor{
		workDir:   workDir,
		goBinary:  goBinary,
		jsonStore: jsonStore,
		log:       logger,
	}
	e.cmdBuilder = e.testCommandContext
	return e
}

// execute runs the named top-level tests of pkg and calls onEvent for every
// event in stream order. A non-zero exit of go test is not an error: failures
// are carried by the events. The returned error is either the first error of
// onEvent, which stops the process, or the reason the process could not run.
func (e *testExecutor) execute(ctx context.Context, pkg string, names []string, timeout time.Duration, onEvent func(TestEvent) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := buildTestArgs(pkg, names, timeout)
	cmd, cleanup := e.cmdBuilder(ctx, e.goBinary, args...)
	defer cleanup()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	raw, err := e.jsonStore.Open(pkg)
	if err != nil {
		return fmt.Errorf("failed to open raw output for %s: %w", pkg, err)
	}
	defer func() {
		if cerr := raw.Close(); cerr != nil {
			e.log.Warn("Failed to close raw output", "package", pkg, "err", cerr)
		}
	}()

	e.log.Debug("Running tests", "package", pkg, "tests", len(names), "command", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.goBinary, err)
	}

	hookErr := streamEvents(stdout, raw, e.log, onEvent)
	if hookErr != nil {
		cancel()
		// drain so the process is not blocked on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	if hookErr != nil {
		return hookErr
	}
	if stderr.Len() > 0 && ctx.Err() == nil {
		// older toolchains print build errors on stderr instead of build-output events
		if err := onEvent(TestEvent{Action: ActionBuildOutput, Output: stderr.String()}); err != nil {
			return err
		}
	}
	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		// go test exits with 1 on test failures and 2 on build failures; the
		// events carry the details for both
		e.log.Debug("go test exited", "package", pkg, "code", exitErr.ExitCode(), "stderr", stderr.String())
		return nil
	}
	if stderr.Len() > 0 {
		return fmt.Errorf("go test failed: %w\nstderr: %s", waitErr, stderr.String())
	}
	return fmt.Errorf("go test failed: %w", waitErr)
}

// streamEvents decodes one event per line. Lines that are not JSON events are
// turned into output events so that nothing printed by the process is lost.
func streamEvents(r io.Reader, raw io.Writer, logger log.Logger, onEvent func(TestEvent) error) error {
	reader := bufio.NewReader(r)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, err := raw.Write(line); err != nil {
				logger.Warn("Failed to store raw output", "err", err)
			}
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				event, err := parseTestEvent(trimmed)
				if err != nil {
					event = TestEvent{Action: ActionBuildOutput, Output: string(line)}
				}
				if err := onEvent(event); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("Failed to read test output", "err", readErr)
			}
			return nil
		}
	}
}

func buildTestArgs(pkg string, names []string, timeout time.Duration) []string {
	args := []string{TestCommand, JSONFlag, CountFlag, DisableCacheCount, RunFlag, runPattern(names)}
	if timeout > 0 {
		args = append(args, TimeoutFlag, timeout.String())
	}
	return append(args, pkg)
}

// runPattern selects exactly the given top-level tests.
func runPattern(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	return fmt.Sprintf("^(%s)$", strings.Join(quoted, "|"))
}

func (e *testExecutor) testCommandContext(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = e.workDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = CancelWaitDelay
	return cmd, func() {}
}
