package resolver

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// defaultPins is the built-in pinned catalog.
var defaultPins = map[string]string{
	"react":                  "18.2.0",
	"react-dom":              "18.2.0",
	"framer-motion":          "10.16.4",
	"recharts":               "2.9.1",
	"html-to-image":          "1.11.11",
	"lucide-react":           "0.292.0",
	"three":                  "0.160.0",
	"firebase":               "10.12.4",
	"@radix-ui/react-label":  "2.0.2",
	"@radix-ui/react-slider": "1.1.2",
}

// Baseline packages every bundle depends on.
var Baseline = []string{"react", "react-dom"}

// UIAliasPattern matches the local UI component aliases.
var UIAliasPattern = regexp.MustCompile(`^@/components/ui/(card|button|input|slider|label|textarea)$`)

// Catalog maps package names to pinned versions.
type Catalog struct {
	pins map[string]string
}

type catalogFile struct {
	Packages map[string]string `yaml:"packages"`
	Replace  bool              `yaml:"replace"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	pins := make(map[string]string, len(defaultPins))
	for k, v := range defaultPins {
		pins[k] = v
	}
	return &Catalog{pins: pins}
}

// NewCatalog builds a catalog from explicit pins.
func NewCatalog(pins map[string]string) *Catalog {
	c := &Catalog{pins: make(map[string]string, len(pins))}
	for k, v := range pins {
		c.pins[strings.ToLower(k)] = v
	}
	return c
}

// LoadCatalog reads a YAML catalog file. Entries extend the built-in pins
// unless the file sets replace: true.
//
//	replace: false
//	packages:
//	  zustand: 4.4.7
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	c := DefaultCatalog()
	if file.Replace {
		c = NewCatalog(nil)
	}
	for name, version := range file.Packages {
		if strings.TrimSpace(version) == "" {
			return nil, fmt.Errorf("catalog entry %q has no version", name)
		}
		c.pins[strings.ToLower(name)] = version
	}
	return c, nil
}

// Version returns the pinned version for a specifier's package.
func (c *Catalog) Version(specifier string) (string, bool) {
	name, _ := SplitSpecifier(specifier)
	v, ok := c.pins[strings.ToLower(name)]
	return v, ok
}

// Names returns the pinned package names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.pins))
	for n := range c.pins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownError reports a bare specifier outside the catalog.
type UnknownError struct {
	Specifier string
	Allowed   []string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("package %q is not in the dependency catalog (allowed: %s)",
		e.Specifier, strings.Join(e.Allowed, ", "))
}

// Pin resolves a bare specifier to its package name, subpath and version.
func (c *Catalog) Pin(specifier string) (name, subpath, version string, err error) {
	name, subpath = SplitSpecifier(specifier)
	version, ok := c.pins[strings.ToLower(name)]
	if !ok {
		return "", "", "", &UnknownError{Specifier: specifier, Allowed: c.Names()}
	}
	return name, subpath, version, nil
}

// SplitSpecifier splits a bare specifier into package name and subpath,
// keeping scoped names (@scope/pkg) intact.
func SplitSpecifier(spec string) (name, subpath string) {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1], strings.Join(parts[2:], "/")
	}
	return parts[0], strings.Join(parts[1:], "/")
}

// IsBare reports whether spec names a package rather than a path or URL.
func IsBare(spec string) bool {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return false
	}
	if strings.HasPrefix(spec, "@/") || strings.Contains(spec, ":") {
		return false
	}
	return true
}

// IsLocalAlias reports whether spec resolves inside the submission or to
// the built-in UI module instead of the CDN.
func IsLocalAlias(spec string) bool {
	return strings.HasPrefix(spec, "@/")
}
