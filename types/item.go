package types

import (
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/tracker"
)

var _ tracker.Item = (*TestItem)(nil)

// TestItem is one collected top-level test function.
type TestItem struct {
	Package    string        // Import path of the package the test lives in
	Name       string        // Test function name
	Timeout    time.Duration // Timeout of the package run, 0 for the go default
	SkipReason string        // Set when the item must not be executed
}

// TestIDFor builds the identifier of a test as written to the skiplist and passlist files.
func TestIDFor(pkg, name string) string {
	return pkg + "." + name
}

// ID implements tracker.Item.
func (t *TestItem) ID() string {
	return TestIDFor(t.Package, t.Name)
}

// AddSkip implements tracker.Item.
func (t *TestItem) AddSkip(reason string) {
	t.SkipReason = reason
}

// Skipped reports whether the item was annotated to be skipped.
func (t *TestItem) Skipped() bool {
	return t.SkipReason != ""
}

// TrackerItems exposes items to the tracker without copying them.
func TrackerItems(items []*TestItem) []tracker.Item {
	out := make([]tracker.Item, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
