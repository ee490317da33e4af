// Package styles generates the stylesheet for a bundle from the utility
// class names that appear in it.
//
// The bundle is scanned as opaque text; every token that parses as a
// known utility (optionally behind variants such as hover: or md:) yields
// one rule. Output is byte-identical for identical input and safelist.
package styles

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var candidatePattern = regexp.MustCompile(`[A-Za-z0-9_\-:/.%#\[\]()!,]+`)

var breakpoints = []struct {
	name  string
	width string
}{
	{"sm", "640px"},
	{"md", "768px"},
	{"lg", "1024px"},
	{"xl", "1280px"},
	{"2xl", "1536px"},
}

// pseudo variants append to the selector; prefix variants wrap it.
var (
	pseudoVariants = map[string]string{
		"hover":         ":hover",
		"focus":         ":focus",
		"focus-visible": ":focus-visible",
		"focus-within":  ":focus-within",
		"active":        ":active",
		"disabled":      ":disabled",
		"first":         ":first-child",
		"last":          ":last-child",
		"odd":           ":nth-child(odd)",
		"even":          ":nth-child(even)",
		"placeholder":   "::placeholder",
	}
	prefixVariants = map[string]string{
		"dark":          ".dark ",
		"group-hover":   ".group:hover ",
		"peer-disabled": ".peer:disabled ~ ",
	}
)

var defaultRegistry = newRegistry()

type rule struct {
	class      string
	breakpoint int
	order      int
	variants   int
	selector   string
	u          utility
}

// Generator builds stylesheets.
type Generator struct {
	safelist []string
	reg      *registry
}

// New creates a Generator with extra safelisted classes on top of the
// built-in ones.
func New(safelist []string) *Generator {
	list := append([]string(nil), builtinSafelist...)
	for _, s := range safelist {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return &Generator{safelist: list, reg: defaultRegistry}
}

// Classes returns the recognised utility classes in content plus the
// safelist, in emission order.
func (g *Generator) Classes(content ...[]byte) []string {
	rules := g.rules(content)
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.class
	}
	return out
}

// Generate returns the minified stylesheet: base layer, then extra CSS
// (stylesheets imported by the bundle), then utilities.
func (g *Generator) Generate(extra []byte, content ...[]byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(baseLayer)
	if len(extra) > 0 {
		buf.Write(extra)
		buf.WriteByte('\n')
	}
	buf.WriteString(render(g.rules(content)))

	res := api.Transform(buf.String(), api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LogLevel:         api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("failed to minify stylesheet: %s", res.Errors[0].Text)
	}
	return res.Code, nil
}

func (g *Generator) rules(content [][]byte) []rule {
	seen := make(map[string]struct{})
	var rules []rule
	consider := func(class string) {
		if _, ok := seen[class]; ok {
			return
		}
		seen[class] = struct{}{}
		if r, ok := g.parse(class); ok {
			rules = append(rules, r)
		}
	}

	for _, c := range content {
		for _, tok := range candidatePattern.FindAll(c, -1) {
			consider(string(tok))
		}
	}
	for _, s := range g.safelist {
		consider(s)
	}

	sort.Slice(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.breakpoint != b.breakpoint {
			return a.breakpoint < b.breakpoint
		}
		if a.order != b.order {
			return a.order < b.order
		}
		if a.variants != b.variants {
			return a.variants < b.variants
		}
		return a.class < b.class
	})
	return rules
}

// parse turns a class such as md:hover:bg-primary/90 into a rule.
func (g *Generator) parse(class string) (rule, bool) {
	if len(class) > 120 || strings.HasSuffix(class, ":") {
		return rule{}, false
	}
	parts := splitVariants(class)
	base := parts[len(parts)-1]
	variants := parts[:len(parts)-1]

	u, order, ok := g.reg.lookup(base)
	if !ok {
		return rule{}, false
	}

	r := rule{class: class, order: order, variants: len(variants)}
	var prefix, suffix, pseudoElement string
	for _, v := range variants {
		if idx := breakpointIndex(v); idx > 0 {
			if r.breakpoint != 0 {
				return rule{}, false
			}
			r.breakpoint = idx
			continue
		}
		if p, ok := prefixVariants[v]; ok {
			prefix += p
			continue
		}
		p, ok := pseudoVariants[v]
		if !ok {
			return rule{}, false
		}
		if strings.HasPrefix(p, "::") {
			pseudoElement = p
		} else {
			suffix += p
		}
	}

	r.selector = prefix + "." + escapeClass(class) + suffix + pseudoElement + u.child
	r.u = u
	return r, true
}

// splitVariants splits on colons outside brackets.
func splitVariants(class string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(class); i++ {
		switch class[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ':':
			if depth == 0 {
				parts = append(parts, class[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, class[start:])
}

func breakpointIndex(v string) int {
	for i, bp := range breakpoints {
		if bp.name == v {
			return i + 1
		}
	}
	return 0
}

func escapeClass(class string) string {
	var b strings.Builder
	for i, r := range class {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, "\\3%c ", r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func render(rules []rule) string {
	var b strings.Builder
	current := 0
	needed := make(map[string]bool)
	for _, r := range rules {
		if r.breakpoint != current {
			if current != 0 {
				b.WriteString("}\n")
			}
			current = r.breakpoint
			fmt.Fprintf(&b, "@media (min-width: %s) {\n", breakpoints[current-1].width)
		}
		b.WriteString(r.selector)
		b.WriteString(" {")
		for i, dcl := range r.u.decls {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(dcl.prop)
			b.WriteByte(':')
			b.WriteString(dcl.value)
		}
		b.WriteString("}\n")
		if r.u.keyframes != "" {
			needed[r.u.keyframes] = true
		}
	}
	if current != 0 {
		b.WriteString("}\n")
	}
	for _, name := range sortedKeys(needed) {
		b.WriteString(keyframes[name])
		b.WriteByte('\n')
	}
	return b.String()
}
