package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type importRule struct {
	target  string   // forbidden import prefix
	allowed []string // importer prefixes exempt from the rule
}

// TestLayering keeps the infra backends behind their facades: blob drivers
// are reached through this package and the domain package stays free of
// internal imports.
func TestLayering(t *testing.T) {
	rules := []importRule{
		{target: "localemr/internal/infra/blob", allowed: []string{"localemr/internal/blob", "localemr/internal/infra/blob"}},
		{target: "localemr/internal", allowed: []string{"localemr/internal", "localemr/cmd"}},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "localemr/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		for _, rule := range rules {
			if hasAnyPrefix(pkg.PkgPath, rule.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if isUnder(importPath, rule.target) {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import: %s", v)
		}
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if isUnder(path, p) {
			return true
		}
	}
	return false
}

func isUnder(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}
