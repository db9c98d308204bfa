package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartRun(runID string, totalTests int)
	StartPackage(pkg string, totalTests int)
	StartTest(testID string)
	UpdateTest(testID string, status types.TestStatus)
	CompletePackage(pkg string)
	Snapshot() ProgressSnapshot
	Stop()
}

// ProgressSnapshot is a point-in-time view of a run.
type ProgressSnapshot struct {
	RunID          string    `json:"run_id"`
	CurrentPackage string    `json:"current_package,omitempty"`
	Completed      int       `json:"completed"`
	Total          int       `json:"total"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	Running        []string  `json:"running,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(runID string, totalTests int)             {}
func (n *noOpProgressIndicator) StartPackage(pkg string, totalTests int)           {}
func (n *noOpProgressIndicator) StartTest(testID string)                           {}
func (n *noOpProgressIndicator) UpdateTest(testID string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompletePackage(pkg string)                        {}
func (n *noOpProgressIndicator) Snapshot() ProgressSnapshot                        { return ProgressSnapshot{} }
func (n *noOpProgressIndicator) Stop()                                             {}

// consoleProgressIndicator tracks the run and, when given an update interval,
// logs a progress line periodically
type consoleProgressIndicator struct {
	logger   log.Logger
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	runID            string
	currentPackage   string
	completedTests   int
	totalTests       int
	passed           int
	failed           int
	skipped          int
	runStartTime     time.Time
	packageStartTime time.Time

	// Track currently running tests
	runningTests map[string]time.Time // test ID -> start time
}

// NewConsoleProgressIndicator creates a progress indicator. With a zero
// updateInterval it only tracks progress for snapshots.
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	indicator := &consoleProgressIndicator{
		logger:       logger,
		stopCh:       make(chan struct{}),
		runningTests: make(map[string]time.Time),
	}

	if updateInterval > 0 {
		indicator.ticker = time.NewTicker(updateInterval)
		go indicator.progressReporter()
	}

	return indicator
}

func (c *consoleProgressIndicator) StartRun(runID string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runID = runID
	c.totalTests = totalTests
	c.completedTests = 0
	c.passed, c.failed, c.skipped = 0, 0, 0
	c.runStartTime = time.Now()
	c.runningTests = make(map[string]time.Time)

	c.logger.Info("Starting run", "run_id", runID, "totalTests", totalTests)
}

func (c *consoleProgressIndicator) StartPackage(pkg string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentPackage = pkg
	c.packageStartTime = time.Now()

	c.logger.Info("Starting package", "package", pkg, "packageTests", totalTests)
}

// StartTest tracks when a test starts running
func (c *consoleProgressIndicator) StartTest(testID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[testID] = time.Now()
	c.logger.Debug("Test started", "test", testID, "runningTests", len(c.runningTests))
}

func (c *consoleProgressIndicator) UpdateTest(testID string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testID)

	c.completedTests++
	switch status {
	case types.TestStatusPass:
		c.passed++
	case types.TestStatusSkip:
		c.skipped++
	default:
		c.failed++
	}

	// Log individual test completion at debug level to avoid spam
	c.logger.Debug("Test completed", "test", testID, "status", status, "completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) CompletePackage(pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.packageStartTime).Truncate(time.Millisecond)
	c.logger.Info("Completed package", "package", pkg, "duration", duration, "completed", c.completedTests, "total", c.totalTests)
	c.currentPackage = ""
	c.runningTests = make(map[string]time.Time)
}

func (c *consoleProgressIndicator) Snapshot() ProgressSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	running := make([]string, 0, len(c.runningTests))
	for id := range c.runningTests {
		running = append(running, id)
	}
	sort.Strings(running)

	return ProgressSnapshot{
		RunID:          c.runID,
		CurrentPackage: c.currentPackage,
		Completed:      c.completedTests,
		Total:          c.totalTests,
		Passed:         c.passed,
		Failed:         c.failed,
		Skipped:        c.skipped,
		Running:        running,
		StartedAt:      c.runStartTime,
	}
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	detailsStr := formatRunningTests(c.runningTests, 3)

	// Calculate completion percentage
	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Info("Progress update",
		"package", c.currentPackage,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"passed", c.passed,
		"failed", c.failed,
		"skipped", c.skipped,
		"longestRunning", detailsStr,
	)
}

// Stop stops the progress indicator
func (c *consoleProgressIndicator) Stop() {
	c.stopOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.stopCh)
	})
}

// Helper function that formats running tests into a display string
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{
			name:     testName,
			duration: now.Sub(startTime),
		})
	}

	// Sort by duration (longest running first)
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		duration := test.duration.Truncate(time.Second)
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, duration))
	}

	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}
