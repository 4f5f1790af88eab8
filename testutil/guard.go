// Package testutil provides reusable testing helpers for enforcing layering
// rules between the pure numbering packages and the storage stack.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoDirectImports scans all non-test .go files in dir (typically "." from within the package)
// and fails if any import path satisfies the forbidden predicate. It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// storagePaths are the packages that perform I/O against a versioned store.
var storagePaths = []string{
	"/internal/blob",
	"/internal/infra",
	"/internal/optimistic",
	"/internal/core",
}

// StorageImportForbidden matches imports of the storage stack, database
// drivers and cloud SDKs. Allocation and transition code must stay pure.
func StorageImportForbidden(path string) bool {
	if path == "database/sql" || path == "os" || strings.HasPrefix(path, "net/") {
		return true
	}
	if strings.HasPrefix(path, "github.com/aws/") || strings.HasPrefix(path, "github.com/jackc/") || strings.HasPrefix(path, "modernc.org/") {
		return true
	}
	for _, p := range storagePaths {
		if strings.Contains(path, p+"/") || strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		fileAst, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
