package bundler

import (
	"regexp"
	"sort"

	"github.com/thesara-space/forge/internal/domain/resolver"
)

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bfrom\s*["']([^"'\n]+)["']`),
	regexp.MustCompile(`\bimport\s*\(\s*["']([^"'\n]+)["']\s*\)`),
	regexp.MustCompile(`\brequire\s*\(\s*["']([^"'\n]+)["']\s*\)`),
	regexp.MustCompile(`(?m)^\s*import\s*["']([^"'\n]+)["']`),
}

// ScanImports returns every specifier referenced by an import statement,
// dynamic import, require call or side-effect import in code. It is a
// textual scan and over-includes.
func ScanImports(code []byte) []string {
	seen := make(map[string]struct{})
	for _, re := range importPatterns {
		for _, m := range re.FindAllSubmatch(code, -1) {
			seen[string(m[1])] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot maps scanned specifiers onto catalog versions keyed by package
// name. The baseline runtime is always present. Bare specifiers missing
// from the catalog are returned separately.
func Snapshot(specifiers []string, catalog *resolver.Catalog) (map[string]string, []string) {
	deps := make(map[string]string)
	for _, name := range resolver.Baseline {
		if v, ok := catalog.Version(name); ok {
			deps[name] = v
		}
	}

	var unknown []string
	for _, spec := range specifiers {
		if !resolver.IsBare(spec) {
			continue
		}
		name, _ := resolver.SplitSpecifier(spec)
		v, ok := catalog.Version(name)
		if !ok {
			unknown = append(unknown, spec)
			continue
		}
		deps[name] = v
	}
	return deps, unknown
}
