// Package plan loads the list of packages a run covers.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// DefaultPattern is used when neither a plan file nor packages are given.
const DefaultPattern = "./..."

// PackageConfig is one entry of a plan file.
type PackageConfig struct {
	Package string `yaml:"package" toml:"package"`
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// File is the on-disk plan format.
type File struct {
	Packages []PackageConfig `yaml:"packages" toml:"packages"`
}

// Entry is a validated plan entry.
type Entry struct {
	Pattern string        // Package pattern passed to go test, e.g. "./feature/..."
	Timeout time.Duration // 0 means the go test default
}

// Plan is the ordered list of package patterns to run.
type Plan struct {
	Entries []Entry
}

// Config contains plan configuration
type Config struct {
	Log            log.Logger
	File           string        // Optional plan file (.yaml, .yml or .toml)
	Packages       []string      // Package patterns used when no plan file is set
	DefaultTimeout time.Duration // Timeout for entries that don't set one
}

// Load builds the plan from the plan file, or from the package patterns when
// no file is configured.
func Load(cfg Config) (*Plan, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	var file *File
	if cfg.File != "" {
		var err error
		file, err = loadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
	} else {
		patterns := cfg.Packages
		if len(patterns) == 0 {
			patterns = []string{DefaultPattern}
		}
		file = &File{}
		for _, p := range patterns {
			file.Packages = append(file.Packages, PackageConfig{Package: p})
		}
	}

	p, err := fromFile(file, cfg.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	cfg.Log.Debug("Plan loaded", "file", cfg.File, "entries", len(p.Entries))
	return p, nil
}

func fromFile(file *File, defaultTimeout time.Duration) (*Plan, error) {
	if len(file.Packages) == 0 {
		return nil, errors.New("plan has no packages")
	}

	p := &Plan{}
	seen := make(map[string]bool)
	for i, pkg := range file.Packages {
		pattern := strings.TrimSpace(pkg.Package)
		if pattern == "" {
			return nil, fmt.Errorf("package entry %d has no package", i)
		}
		if seen[pattern] {
			return nil, fmt.Errorf("package %s is listed more than once", pattern)
		}
		seen[pattern] = true

		timeout := defaultTimeout
		if pkg.Timeout != "" {
			var err error
			timeout, err = time.ParseDuration(pkg.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout for package %s: %w", pattern, err)
			}
			if timeout < 0 {
				return nil, fmt.Errorf("negative timeout for package %s", pattern)
			}
		}
		p.Entries = append(p.Entries, Entry{Pattern: pattern, Timeout: timeout})
	}
	return p, nil
}

func loadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var file File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse plan file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("failed to parse plan file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan file extension %q", ext)
	}
	return &file, nil
}
