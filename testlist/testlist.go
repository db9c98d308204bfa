// Package testlist discovers test functions by parsing test files, without
// compiling the packages.
package testlist

import (
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"
)

// Test is a top-level test function found in a package.
type Test struct {
	Package string // Import path of the package
	Name    string // Test function name
}

// FindTests returns the test functions of the packages matched by pattern, in
// directory order. Patterns are relative directories ("./pkg", "./pkg/..."),
// "." or "./...", or import paths inside the module rooted at workingDir.
func FindTests(pattern string, workingDir string) ([]Test, error) {
	modulePath, err := readModulePath(workingDir)
	if err != nil {
		return nil, err
	}

	relPath, recursive, err := resolvePattern(pattern, modulePath)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(workingDir, filepath.FromSlash(relPath))
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("package path %s is not a directory", root)
	}

	dirs := []string{root}
	if recursive {
		dirs, err = findPackageDirs(root)
		if err != nil {
			return nil, err
		}
	}

	var tests []Test
	for _, dir := range dirs {
		rel, err := filepath.Rel(workingDir, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve package path: %w", err)
		}
		importPath := modulePath
		if rel != "." {
			importPath = path.Join(modulePath, filepath.ToSlash(rel))
		}

		names, err := FindTestFunctions(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			tests = append(tests, Test{Package: importPath, Name: name})
		}
	}
	return tests, nil
}

// FindTestFunctions returns the test function names declared in the _test.go
// files of dir, ordered by file name and declaration. Files excluded by build
// constraints or GOOS/GOARCH suffixes for the current platform are ignored.
func FindTestFunctions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		match, err := build.Default.MatchFile(dir, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read build constraints of %s: %w", entry.Name(), err)
		}
		if !match {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		// Traverse top-level declarations in search of test functions
		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}
			if IsTestName(funcDecl.Name.Name) {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	return testFunctions, nil
}

// IsTestName reports whether name is a name go test runs as a test: "Test"
// followed by nothing or by a character that is not a lower case letter.
// TestMain is excluded.
func IsTestName(name string) bool {
	if !strings.HasPrefix(name, "Test") || name == "TestMain" {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}

func readModulePath(workingDir string) (string, error) {
	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to find go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}
	return modFile.Module.Mod.Path, nil
}

// resolvePattern turns a package pattern into a slash separated directory
// relative to the module root.
func resolvePattern(pattern, modulePath string) (relPath string, recursive bool, err error) {
	if pattern == "..." || strings.HasSuffix(pattern, "/...") {
		recursive = true
		pattern = strings.TrimSuffix(strings.TrimSuffix(pattern, "..."), "/")
		if pattern == "" {
			pattern = "."
		}
	}

	switch {
	case pattern == "." || strings.HasPrefix(pattern, "./"):
		return path.Clean(pattern), recursive, nil
	case pattern == modulePath:
		return ".", recursive, nil
	case strings.HasPrefix(pattern, modulePath+"/"):
		return strings.TrimPrefix(pattern, modulePath+"/"), recursive, nil
	default:
		return "", false, fmt.Errorf("package %s is not in module %s", pattern, modulePath)
	}
}

// findPackageDirs returns every directory below root holding test files,
// skipping testdata, vendor, hidden directories and nested modules.
func findPackageDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root {
			name := d.Name()
			if name == "testdata" || name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}

		matches, err := filepath.Glob(filepath.Join(p, "*_test.go"))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}
