package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RawEventsSuffix is appended to the file name of a package's raw output
const RawEventsSuffix = ".json.log"

// JSONStore keeps the raw go test -json output of each package
type JSONStore interface {
	Open(pkg string) (io.WriteCloser, error)
	Dir() string
}

var _ JSONStore = (*jsonStore)(nil)

// jsonStore writes one file per package under <logDir>/<runID>
type jsonStore struct {
	dir string
}

// NewJSONStore creates a store for one run. An empty logDir disables storing.
func NewJSONStore(logDir, runID string) JSONStore {
	if logDir == "" {
		return &jsonStore{}
	}
	return &jsonStore{dir: filepath.Join(logDir, runID)}
}

// Dir returns the directory of the run, empty when disabled
func (s *jsonStore) Dir() string {
	return s.dir
}

// Open creates the raw output file of pkg, truncating an earlier one
func (s *jsonStore) Open(pkg string) (io.WriteCloser, error) {
	if s.dir == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw output directory: %w", err)
	}
	return os.Create(s.PathFor(pkg))
}

// PathFor returns the raw output file of pkg
func (s *jsonStore) PathFor(pkg string) string {
	return filepath.Join(s.dir, safeFilename(pkg)+RawEventsSuffix)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func safeFilename(s string) string {
	s = strings.ReplaceAll(s, "...", "")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}
