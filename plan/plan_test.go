package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	yamlPlan := `
packages:
  - package: ./feature/...
    timeout: 5m
  - package: ./other
`
	tomlPlan := `
[[packages]]
package = "./feature/..."
timeout = "5m"

[[packages]]
package = "./other"
`
	want := []Entry{
		{Pattern: "./feature/...", Timeout: 5 * time.Minute},
		{Pattern: "./other", Timeout: time.Minute},
	}

	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "yaml", file: "plan.yaml", body: yamlPlan},
		{name: "yml", file: "plan.yml", body: yamlPlan},
		{name: "toml", file: "plan.toml", body: tomlPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load(Config{
				Log:            log.New(),
				File:           writePlan(t, tt.file, tt.body),
				DefaultTimeout: time.Minute,
			})
			require.NoError(t, err)
			assert.Equal(t, want, p.Entries)
		})
	}
}

func TestLoad_Packages(t *testing.T) {
	p, err := Load(Config{Log: log.New(), Packages: []string{"./a", "./b/..."}})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Pattern: "./a"}, {Pattern: "./b/..."}}, p.Entries)

	p, err = Load(Config{Log: log.New()})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Pattern: DefaultPattern}}, p.Entries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "empty plan", file: "plan.yaml", body: "packages: []\n"},
		{name: "missing package", file: "plan.yaml", body: "packages:\n  - timeout: 1m\n"},
		{name: "bad timeout", file: "plan.yaml", body: "packages:\n  - package: ./a\n    timeout: soon\n"},
		{name: "negative timeout", file: "plan.yaml", body: "packages:\n  - package: ./a\n    timeout: -1m\n"},
		{name: "duplicate package", file: "plan.yaml", body: "packages:\n  - package: ./a\n  - package: ./a\n"},
		{name: "malformed yaml", file: "plan.yaml", body: "packages: [\n"},
		{name: "malformed toml", file: "plan.toml", body: "[[packages]\n"},
		{name: "unknown extension", file: "plan.json", body: "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Config{Log: log.New(), File: writePlan(t, tt.file, tt.body)})
			require.Error(t, err)
		})
	}

	_, err := Load(Config{Log: log.New(), File: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}
