package tracker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrSkiplistNotFound is returned when a configured skiplist file does not exist.
var ErrSkiplistNotFound = errors.New("skiplist file not found")

// ModifyItems marks every item whose identifier is listed in the skiplist file.
// Items are annotated in place; none are removed or reordered.
func (s *Session) ModifyItems(items []Item) error {
	if s.cfg.Skiplist == "" {
		return nil
	}

	skiplist, err := LoadSkiplist(s.cfg.Skiplist)
	if err != nil {
		return err
	}

	var matched int
	for _, item := range items {
		if _, ok := skiplist[item.ID()]; ok {
			item.AddSkip(SkipReason)
			matched++
		}
	}

	s.cfg.Metrics.RecordSkiplisted(matched)
	s.cfg.Log.Debug("Applied skiplist", "file", s.cfg.Skiplist, "entries", len(skiplist), "items", len(items), "skipped", matched)
	return nil
}

// LoadSkiplist reads a newline separated list of identifiers. Every line is kept
// as is, so a trailing newline adds an empty entry that never matches a test.
func LoadSkiplist(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSkiplistNotFound, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read skiplist %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	skiplist := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		skiplist[line] = struct{}{}
	}
	return skiplist, nil
}
