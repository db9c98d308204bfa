package testlist

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

const goMod = "module github.com/test/module\n\ngo 1.21\n"

func setupModule(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644))
	return dir
}

func TestFindTests(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected []Test
	}{
		{
			name:    "module path",
			pattern: "github.com/test/module/pkg",
			expected: []Test{
				{Package: "github.com/test/module/pkg", Name: "TestWithBenchmark"},
				{Package: "github.com/test/module/pkg", Name: "TestWithMain"},
				{Package: "github.com/test/module/pkg", Name: "TestNormal"},
				{Package: "github.com/test/module/pkg", Name: "TestAnother"},
				{Package: "github.com/test/module/pkg", Name: "Test"},
			},
		},
		{
			name:    "relative path",
			pattern: "./pkg/sub",
			expected: []Test{
				{Package: "github.com/test/module/pkg/sub", Name: "TestSub"},
			},
		},
		{
			name:    "recursive relative path",
			pattern: "./pkg/...",
			expected: []Test{
				{Package: "github.com/test/module/pkg", Name: "TestWithBenchmark"},
				{Package: "github.com/test/module/pkg", Name: "TestWithMain"},
				{Package: "github.com/test/module/pkg", Name: "TestNormal"},
				{Package: "github.com/test/module/pkg", Name: "TestAnother"},
				{Package: "github.com/test/module/pkg", Name: "Test"},
				{Package: "github.com/test/module/pkg/sub", Name: "TestSub"},
			},
		},
		{
			name:    "whole module",
			pattern: "./...",
			expected: []Test{
				{Package: "github.com/test/module", Name: "TestRoot"},
				{Package: "github.com/test/module/pkg", Name: "TestWithBenchmark"},
				{Package: "github.com/test/module/pkg", Name: "TestWithMain"},
				{Package: "github.com/test/module/pkg", Name: "TestNormal"},
				{Package: "github.com/test/module/pkg", Name: "TestAnother"},
				{Package: "github.com/test/module/pkg", Name: "Test"},
				{Package: "github.com/test/module/pkg/sub", Name: "TestSub"},
			},
		},
		{
			name:    "module root",
			pattern: ".",
			expected: []Test{
				{Package: "github.com/test/module", Name: "TestRoot"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupModule(t)
			createModuleTree(t, dir)

			found, err := FindTests(tt.pattern, dir)
			require.NoError(t, err)
			require.Equal(t, tt.expected, found)
		})
	}
}

func TestFindTestsErrors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		setup   func(string) error
		wantErr string
	}{
		{
			name:    "missing go.mod",
			pattern: "./pkg",
			wantErr: "failed to find go.mod",
		},
		{
			name:    "invalid go.mod",
			pattern: "./pkg",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte("invalid content"), 0644)
			},
			wantErr: "failed to parse go.mod",
		},
		{
			name:    "package not in module",
			pattern: "github.com/other/module/pkg",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644)
			},
			wantErr: "package github.com/other/module/pkg is not in module github.com/test/module",
		},
		{
			name:    "relative path not found",
			pattern: "./nonexistent",
			setup: func(dir string) error {
				return os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644)
			},
			wantErr: "failed to read package directory",
		},
		{
			name:    "unparseable test file",
			pattern: "./broken",
			setup: func(dir string) error {
				if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644); err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Join(dir, "broken"), 0755); err != nil {
					return err
				}
				return os.WriteFile(filepath.Join(dir, "broken", "x_test.go"), []byte("package broken\nfunc {"), 0644)
			},
			wantErr: "failed to parse x_test.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if tt.setup != nil {
				require.NoError(t, tt.setup(tmpDir))
			}

			_, err := FindTests(tt.pattern, tmpDir)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindTestsBuildConstraints(t *testing.T) {
	dir := setupModule(t)
	pkgDir := filepath.Join(dir, "pkg")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))

	otherOS := "windows"
	if runtime.GOOS == "windows" {
		otherOS = "linux"
	}
	writeTestFile := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, name), []byte(content), 0644))
	}
	writeTestFile("plain_test.go", "package pkg\n\nimport \"testing\"\n\nfunc TestPlain(t *testing.T) {}\n")
	writeTestFile("integ_test.go", "//go:build integration\n\npackage pkg\n\nimport \"testing\"\n\nfunc TestIntegration(t *testing.T) {}\n")
	writeTestFile("os_"+otherOS+"_test.go", "package pkg\n\nimport \"testing\"\n\nfunc TestOtherOS(t *testing.T) {}\n")
	writeTestFile("os_"+runtime.GOOS+"_test.go", "package pkg\n\nimport \"testing\"\n\nfunc TestThisOS(t *testing.T) {}\n")

	tests, err := FindTests("./pkg", dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []Test{
		{Package: "github.com/test/module/pkg", Name: "TestPlain"},
		{Package: "github.com/test/module/pkg", Name: "TestThisOS"},
	}, tests)
}

func TestIsTestName(t *testing.T) {
	require.True(t, IsTestName("Test"))
	require.True(t, IsTestName("TestFoo"))
	require.True(t, IsTestName("Test_foo"))
	require.True(t, IsTestName("Test1"))
	require.False(t, IsTestName("Testify"))
	require.False(t, IsTestName("TestMain"))
	require.False(t, IsTestName("BenchmarkFoo"))
	require.False(t, IsTestName("ExampleFoo"))
}

// createModuleTree lays out:
//
//	root_test.go
//	pkg/{benchmark,main,normal}_test.go
//	pkg/sub/sub_test.go
//	pkg/testdata/ignored_test.go
//	nested/go.mod + nested_test.go (separate module)
func createModuleTree(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"root_test.go": `
package module

func TestRoot(t *testing.T) {}
`,
		"pkg/normal_test.go": `
package pkg

func TestNormal(t *testing.T) {}
func TestAnother(t *testing.T) {}
func Test(t *testing.T) {}
func Testify(t *testing.T) {}
`,
		"pkg/main_test.go": `
package pkg

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestWithMain(t *testing.T) {}
`,
		"pkg/benchmark_test.go": `
package pkg

type helper struct{}

func (helper) TestMethod(t *testing.T) {}

func BenchmarkSomething(b *testing.B) {}
func TestWithBenchmark(t *testing.T) {}
`,
		"pkg/sub/sub_test.go": `
package sub

func TestSub(t *testing.T) {}
`,
		"pkg/testdata/ignored_test.go": `
package ignored

func TestIgnored(t *testing.T) {}
`,
		"nested/go.mod": "module github.com/test/nested\n",
		"nested/nested_test.go": `
package nested

func TestNested(t *testing.T) {}
`,
	}

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}
