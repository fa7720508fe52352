package architecture_test

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/mod/modfile"
)

// layers lists each package group with the groups it must never import.
var layers = map[string][]string{
	"domain":   {"data", "realtime", "modules", "services", "http", "app", "observability"},
	"platform": {"domain", "data", "realtime", "modules", "services", "http", "app"},
	"data":     {"realtime", "modules", "services", "http", "app"},
	"realtime": {"data", "modules", "services", "http", "app"},
	"modules":  {"services", "http", "app"},
	"services": {"http", "app"},
}

type goImport struct {
	file  string // slash path relative to the module root
	path  string
	layer string
}

func TestImportBoundaries(t *testing.T) {
	modulePath, imports := internalImports(t)
	for _, imp := range imports {
		for _, banned := range layers[imp.layer] {
			prefix := modulePath + "/internal/" + banned
			if imp.path == prefix || strings.HasPrefix(imp.path, prefix+"/") {
				t.Errorf("%s (%s) imports %q", imp.file, imp.layer, imp.path)
			}
		}
	}
}

// Handlers map errors to responses; nothing below internal/http may depend on gin.
func TestGinStaysInHTTP(t *testing.T) {
	_, imports := internalImports(t)
	for _, imp := range imports {
		if strings.HasPrefix(imp.file, "internal/http/") {
			continue
		}
		if strings.HasPrefix(imp.path, "github.com/gin-gonic/") || strings.HasPrefix(imp.path, "github.com/gin-contrib/") {
			t.Errorf("%s imports %q outside internal/http", imp.file, imp.path)
		}
	}
}

// internalImports parses the import block of every Go file under internal/.
func internalImports(t *testing.T) (string, []goImport) {
	t.Helper()
	root := moduleRoot(t)
	raw, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read go.mod: %v", err)
	}
	modulePath := modfile.ModulePath(raw)
	if modulePath == "" {
		t.Fatalf("module path not found in go.mod")
	}

	var out []goImport
	fset := token.NewFileSet()
	err = filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		layer := strings.SplitN(strings.TrimPrefix(rel, "internal/"), "/", 2)[0]
		for _, spec := range f.Imports {
			p, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			out = append(out, goImport{file: rel, path: p, layer: layer})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk internal/: %v", err)
	}
	return modulePath, out
}

func moduleRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
}
