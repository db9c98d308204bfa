// Package tracker keeps the skiplist and passlist of a test session.
//
// A Session is driven by the host test engine through four hooks, always in
// this order:
//
//	NewSession -> ModifyItems (once) -> RecordReport (per test phase) -> Finish
//
// ModifyItems marks every collected item found in the skiplist file as skipped.
// RecordReport collects the identifiers of tests whose call phase passed and
// appends them to the passlist file when the flush interval has elapsed. Finish
// appends whatever is left. Hooks must not be called concurrently.
package tracker

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum/go-ethereum/log"
)

const (
	SkiplistOption = "skiplist"
	PasslistOption = "passlist"

	// DefaultFlushInterval is how long passed identifiers may stay in memory
	// before the next recorded pass forces a flush.
	DefaultFlushInterval = 90 * time.Second

	// SkipReason is the reason attached to items found in the skiplist.
	SkipReason = "Already passed in previous run"
)

// Options gives access to configuration values by name. *cli.Context satisfies it.
type Options interface {
	String(name string) string
}

// Item is a collected test as seen by the tracker.
type Item interface {
	ID() string
	AddSkip(reason string)
}

// Clock is the time source used to gate flushes.
type Clock interface {
	Now() time.Time
}

// Metricer records tracker activity.
type Metricer interface {
	RecordSkiplisted(n int)
	RecordPassRecorded()
	RecordFlush(ids int)
}

type noopMetrics struct{}

func (noopMetrics) RecordSkiplisted(int) {}
func (noopMetrics) RecordPassRecorded()  {}
func (noopMetrics) RecordFlush(int)      {}

// NoopMetrics discards everything.
var NoopMetrics Metricer = noopMetrics{}

// Config holds the session configuration
type Config struct {
	Skiplist      string        // Input file with identifiers to skip, empty disables skipping
	Passlist      string        // Output file passed identifiers are appended to, empty disables tracking
	FlushInterval time.Duration // Minimum time between two periodic flushes
	Clock         Clock
	Metrics       Metricer
	Log           log.Logger
}

// ConfigFromOptions reads the skiplist and passlist paths from opts.
func ConfigFromOptions(opts Options) Config {
	return Config{
		Skiplist:      opts.String(SkiplistOption),
		Passlist:      opts.String(PasslistOption),
		FlushInterval: DefaultFlushInterval,
	}
}

// Session is the state of one test session.
type Session struct {
	cfg       Config
	passed    map[string]struct{}
	lastFlush time.Time
}

// NewSession starts a session: the passed set is empty and the flush timer starts now.
func NewSession(cfg Config) *Session {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return &Session{
		cfg:       cfg,
		passed:    make(map[string]struct{}),
		lastFlush: cfg.Clock.Now(),
	}
}

// Tracking reports whether passed tests are being recorded.
func (s *Session) Tracking() bool {
	return s.cfg.Passlist != ""
}

// Pending returns the number of recorded identifiers not flushed yet.
func (s *Session) Pending() int {
	return len(s.passed)
}

// RecordReport observes the report of one phase of item. Only a passed call
// phase is recorded. It returns the error of a flush triggered by the record.
func (s *Session) RecordReport(item Item, r Report) error {
	if !s.Tracking() {
		return nil
	}
	if r.Phase != PhaseCall || Classify(r) != OutcomePassed {
		return nil
	}

	id := item.ID()
	sinceFlush := s.cfg.Clock.Now().Sub(s.lastFlush)
	s.passed[id] = struct{}{}
	s.cfg.Metrics.RecordPassRecorded()
	s.cfg.Log.Debug("Recorded passed test", "test", id, "pending", len(s.passed))

	if sinceFlush > s.cfg.FlushInterval {
		if err := s.Flush(); err != nil {
			return err
		}
		s.lastFlush = s.cfg.Clock.Now()
	}
	return nil
}

// Flush appends the pending identifiers to the passlist file and clears them.
// Without a passlist it does nothing and keeps the pending set.
func (s *Session) Flush() error {
	if s.cfg.Passlist == "" {
		return nil
	}

	ids := make([]string, 0, len(s.passed))
	for id := range s.passed {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if err := appendLines(s.cfg.Passlist, ids); err != nil {
		return fmt.Errorf("failed to flush passlist %s: %w", s.cfg.Passlist, err)
	}
	clear(s.passed)

	s.cfg.Metrics.RecordFlush(len(ids))
	s.cfg.Log.Debug("Flushed passlist", "file", s.cfg.Passlist, "count", len(ids))
	return nil
}

// Finish ends the session with a last flush, whatever the elapsed time.
func (s *Session) Finish(exitStatus int) error {
	s.cfg.Log.Debug("Finishing tracker session", "exitStatus", exitStatus, "pending", len(s.passed))
	return s.Flush()
}

func appendLines(path string, lines []string) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
