package styles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type decl struct {
	prop  string
	value string
}

func d(prop, value string) decl {
	return decl{prop: prop, value: value}
}

// utility is the body of one generated rule.
type utility struct {
	decls []decl
	// child is appended to the selector, as in space-x-*.
	child string
	// keyframes names an at-rule the utility depends on.
	keyframes string
}

type handlerFunc func(value string, neg bool) (utility, bool)

type staticEntry struct {
	order int
	u     utility
}

type prefixEntry struct {
	order     int
	negatable bool
	fn        handlerFunc
}

// registry maps class names to utilities. Registration order is the
// emission order of utility groups.
type registry struct {
	next     int
	static   map[string]staticEntry
	prefixes map[string]prefixEntry
}

func (r *registry) add(name string, decls ...decl) {
	r.static[name] = staticEntry{order: r.next, u: utility{decls: decls}}
	r.next++
}

func (r *registry) addUtility(name string, u utility) {
	r.static[name] = staticEntry{order: r.next, u: u}
	r.next++
}

func (r *registry) prefix(p string, negatable bool, fn handlerFunc) {
	r.prefixes[p] = prefixEntry{order: r.next, negatable: negatable, fn: fn}
	r.next++
}

// lookup resolves a class without variants.
func (r *registry) lookup(class string) (utility, int, bool) {
	neg := strings.HasPrefix(class, "-")
	base := strings.TrimPrefix(class, "-")
	if !neg {
		if e, ok := r.static[base]; ok {
			return e.u, e.order, true
		}
	}

	parts := strings.Split(base, "-")
	for i := len(parts) - 1; i >= 1; i-- {
		e, ok := r.prefixes[strings.Join(parts[:i], "-")]
		if !ok || (neg && !e.negatable) {
			continue
		}
		if u, ok := e.fn(strings.Join(parts[i:], "-"), neg); ok {
			return u, e.order, true
		}
	}
	return utility{}, 0, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decls(ds ...decl) utility {
	return utility{decls: ds}
}

// valueHandler builds a handler setting props to a resolved value.
func valueHandler(resolve func(string) (string, bool), props ...string) handlerFunc {
	return func(v string, neg bool) (utility, bool) {
		val, ok := resolve(v)
		if !ok {
			return utility{}, false
		}
		val = negate(val, neg)
		out := make([]decl, len(props))
		for i, p := range props {
			out[i] = d(p, val)
		}
		return decls(out...), true
	}
}

func named(values map[string]string) func(string) (string, bool) {
	return func(v string) (string, bool) {
		val, ok := values[v]
		return val, ok
	}
}

func either(resolvers ...func(string) (string, bool)) func(string) (string, bool) {
	return func(v string) (string, bool) {
		for _, r := range resolvers {
			if val, ok := r(v); ok {
				return val, true
			}
		}
		return "", false
	}
}

func sizeAxis(screen string) func(string) (string, bool) {
	return func(v string) (string, bool) { return size(v, screen) }
}

func marginValue(v string) (string, bool) {
	if v == "auto" {
		return "auto", true
	}
	return spacing(v)
}

func insetValue(v string) (string, bool) {
	return size(v, "")
}

const (
	transformValue = "translate(var(--tw-translate-x, 0), var(--tw-translate-y, 0)) rotate(var(--tw-rotate, 0)) scale(var(--tw-scale-x, 1), var(--tw-scale-y, 1))"
	shadowStack    = "var(--tw-ring-offset-shadow, 0 0 #0000), var(--tw-ring-shadow, 0 0 #0000), var(--tw-shadow)"
	easeDefault    = "cubic-bezier(0.4, 0, 0.2, 1)"
	colorProps     = "color, background-color, border-color, text-decoration-color, fill, stroke"
)

var fontSizes = map[string][2]string{
	"xs":   {"0.75rem", "1rem"},
	"sm":   {"0.875rem", "1.25rem"},
	"base": {"1rem", "1.5rem"},
	"lg":   {"1.125rem", "1.75rem"},
	"xl":   {"1.25rem", "1.75rem"},
	"2xl":  {"1.5rem", "2rem"},
	"3xl":  {"1.875rem", "2.25rem"},
	"4xl":  {"2.25rem", "2.5rem"},
	"5xl":  {"3rem", "1"},
	"6xl":  {"3.75rem", "1"},
	"7xl":  {"4.5rem", "1"},
}

var radii = map[string]string{
	"none": "0px", "sm": "0.125rem", "": "0.25rem", "md": "0.375rem",
	"lg": "0.5rem", "xl": "0.75rem", "2xl": "1rem", "3xl": "1.5rem", "full": "9999px",
}

var shadows = map[string]string{
	"sm":    "0 1px 2px 0 rgb(0 0 0 / 0.05)",
	"":      "0 1px 3px 0 rgb(0 0 0 / 0.1), 0 1px 2px -1px rgb(0 0 0 / 0.1)",
	"md":    "0 4px 6px -1px rgb(0 0 0 / 0.1), 0 2px 4px -2px rgb(0 0 0 / 0.1)",
	"lg":    "0 10px 15px -3px rgb(0 0 0 / 0.1), 0 4px 6px -4px rgb(0 0 0 / 0.1)",
	"xl":    "0 20px 25px -5px rgb(0 0 0 / 0.1), 0 8px 10px -6px rgb(0 0 0 / 0.1)",
	"2xl":   "0 25px 50px -12px rgb(0 0 0 / 0.25)",
	"inner": "inset 0 2px 4px 0 rgb(0 0 0 / 0.05)",
	"none":  "0 0 #0000",
}

var blurs = map[string]string{
	"none": "0", "sm": "4px", "": "8px", "md": "12px", "lg": "16px", "xl": "24px", "2xl": "40px", "3xl": "64px",
}

var maxWidths = map[string]string{
	"none": "none", "xs": "20rem", "sm": "24rem", "md": "28rem", "lg": "32rem",
	"xl": "36rem", "2xl": "42rem", "3xl": "48rem", "4xl": "56rem", "5xl": "64rem",
	"6xl": "72rem", "7xl": "80rem", "full": "100%", "min": "min-content",
	"max": "max-content", "fit": "fit-content", "prose": "65ch",
	"screen-sm": "640px", "screen-md": "768px", "screen-lg": "1024px", "screen-xl": "1280px",
}

var lineHeights = map[string]string{
	"none": "1", "tight": "1.25", "snug": "1.375", "normal": "1.5", "relaxed": "1.625", "loose": "2",
}

var tracking = map[string]string{
	"tighter": "-0.05em", "tight": "-0.025em", "normal": "0em",
	"wide": "0.025em", "wider": "0.05em", "widest": "0.1em",
}

var fontWeights = map[string]string{
	"thin": "100", "extralight": "200", "light": "300", "normal": "400", "medium": "500",
	"semibold": "600", "bold": "700", "extrabold": "800", "black": "900",
}

var gradientDirections = map[string]string{
	"t": "to top", "tr": "to top right", "r": "to right", "br": "to bottom right",
	"b": "to bottom", "bl": "to bottom left", "l": "to left", "tl": "to top left",
}

var keyframes = map[string]string{
	"spin":   "@keyframes spin{to{transform:rotate(360deg)}}",
	"ping":   "@keyframes ping{75%,100%{transform:scale(2);opacity:0}}",
	"pulse":  "@keyframes pulse{50%{opacity:.5}}",
	"bounce": "@keyframes bounce{0%,100%{transform:translateY(-25%);animation-timing-function:cubic-bezier(0.8,0,1,1)}50%{transform:none;animation-timing-function:cubic-bezier(0,0,0.2,1)}}",
}

var animations = map[string]string{
	"spin":   "spin 1s linear infinite",
	"ping":   "ping 1s cubic-bezier(0, 0, 0.2, 1) infinite",
	"pulse":  "pulse 2s cubic-bezier(0.4, 0, 0.6, 1) infinite",
	"bounce": "bounce 1s infinite",
}

func newRegistry() *registry {
	r := &registry{static: make(map[string]staticEntry), prefixes: make(map[string]prefixEntry)}
	registerLayout(r)
	registerFlexGrid(r)
	registerSpacing(r)
	registerSizing(r)
	registerTypography(r)
	registerBackgrounds(r)
	registerBorders(r)
	registerEffects(r)
	registerTransforms(r)
	registerInteractivity(r)
	return r
}

func registerLayout(r *registry) {
	r.add("sr-only",
		d("position", "absolute"), d("width", "1px"), d("height", "1px"), d("padding", "0"),
		d("margin", "-1px"), d("overflow", "hidden"), d("clip", "rect(0, 0, 0, 0)"),
		d("white-space", "nowrap"), d("border-width", "0"))
	r.add("container", d("width", "100%"), d("margin-left", "auto"), d("margin-right", "auto"))
	for _, v := range []string{"block", "inline-block", "inline", "flex", "inline-flex", "grid", "inline-grid", "table", "contents", "list-item"} {
		r.add(v, d("display", v))
	}
	r.add("hidden", d("display", "none"))
	for _, v := range []string{"static", "fixed", "absolute", "relative", "sticky"} {
		r.add(v, d("position", v))
	}
	r.add("isolate", d("isolation", "isolate"))
	for _, v := range []string{"auto", "hidden", "visible", "scroll", "clip"} {
		r.add("overflow-"+v, d("overflow", v))
		r.add("overflow-x-"+v, d("overflow-x", v))
		r.add("overflow-y-"+v, d("overflow-y", v))
	}
	for _, v := range []string{"contain", "cover", "fill", "none", "scale-down"} {
		r.add("object-"+v, d("object-fit", v))
	}
	r.add("object-center", d("object-position", "center"))
	r.add("aspect-auto", d("aspect-ratio", "auto"))
	r.add("aspect-square", d("aspect-ratio", "1 / 1"))
	r.add("aspect-video", d("aspect-ratio", "16 / 9"))
	r.add("visible", d("visibility", "visible"))
	r.add("invisible", d("visibility", "hidden"))

	r.prefix("z", false, func(v string, _ bool) (utility, bool) {
		if v == "auto" {
			return decls(d("z-index", "auto")), true
		}
		n, ok := integer(v, 50)
		if !ok || n%10 != 0 {
			return utility{}, false
		}
		return decls(d("z-index", v)), true
	})
	r.prefix("inset", true, valueHandler(insetValue, "inset"))
	r.prefix("inset-x", true, valueHandler(insetValue, "left", "right"))
	r.prefix("inset-y", true, valueHandler(insetValue, "top", "bottom"))
	for _, side := range []string{"top", "right", "bottom", "left"} {
		r.prefix(side, true, valueHandler(insetValue, side))
	}
}

func registerFlexGrid(r *registry) {
	r.add("flex-row", d("flex-direction", "row"))
	r.add("flex-row-reverse", d("flex-direction", "row-reverse"))
	r.add("flex-col", d("flex-direction", "column"))
	r.add("flex-col-reverse", d("flex-direction", "column-reverse"))
	r.add("flex-wrap", d("flex-wrap", "wrap"))
	r.add("flex-wrap-reverse", d("flex-wrap", "wrap-reverse"))
	r.add("flex-nowrap", d("flex-wrap", "nowrap"))
	r.add("flex-1", d("flex", "1 1 0%"))
	r.add("flex-auto", d("flex", "1 1 auto"))
	r.add("flex-initial", d("flex", "0 1 auto"))
	r.add("flex-none", d("flex", "none"))
	r.add("grow", d("flex-grow", "1"))
	r.add("grow-0", d("flex-grow", "0"))
	r.add("shrink", d("flex-shrink", "1"))
	r.add("shrink-0", d("flex-shrink", "0"))
	r.prefix("basis", false, valueHandler(sizeAxis(""), "flex-basis"))

	items := map[string]string{"start": "flex-start", "end": "flex-end", "center": "center", "baseline": "baseline", "stretch": "stretch"}
	for _, k := range sortedKeys(items) {
		r.add("items-"+k, d("align-items", items[k]))
	}
	justify := map[string]string{"start": "flex-start", "end": "flex-end", "center": "center", "between": "space-between", "around": "space-around", "evenly": "space-evenly", "stretch": "stretch"}
	for _, k := range sortedKeys(justify) {
		r.add("justify-"+k, d("justify-content", justify[k]))
		r.add("content-"+k, d("align-content", justify[k]))
	}
	self := map[string]string{"auto": "auto", "start": "flex-start", "end": "flex-end", "center": "center", "stretch": "stretch"}
	for _, k := range sortedKeys(self) {
		r.add("self-"+k, d("align-self", self[k]))
	}
	r.add("justify-items-center", d("justify-items", "center"))
	r.add("place-items-center", d("place-items", "center"))
	r.add("place-content-center", d("place-content", "center"))

	r.prefix("order", false, func(v string, _ bool) (utility, bool) {
		switch v {
		case "first":
			return decls(d("order", "-9999")), true
		case "last":
			return decls(d("order", "9999")), true
		case "none":
			return decls(d("order", "0")), true
		}
		if _, ok := integer(v, 12); !ok {
			return utility{}, false
		}
		return decls(d("order", v)), true
	})

	repeat := func(prop string, max int) handlerFunc {
		return func(v string, _ bool) (utility, bool) {
			if v == "none" {
				return decls(d(prop, "none")), true
			}
			n, ok := integer(v, max)
			if !ok || n == 0 {
				return utility{}, false
			}
			return decls(d(prop, fmt.Sprintf("repeat(%d, minmax(0, 1fr))", n))), true
		}
	}
	r.prefix("grid-cols", false, repeat("grid-template-columns", 12))
	r.prefix("grid-rows", false, repeat("grid-template-rows", 6))

	span := func(prop string, max int) handlerFunc {
		return func(v string, _ bool) (utility, bool) {
			if v == "full" {
				return decls(d(prop, "1 / -1")), true
			}
			n, ok := integer(v, max)
			if !ok || n == 0 {
				return utility{}, false
			}
			return decls(d(prop, fmt.Sprintf("span %d / span %d", n, n))), true
		}
	}
	r.prefix("col-span", false, span("grid-column", 12))
	r.prefix("row-span", false, span("grid-row", 6))
	r.add("grid-flow-row", d("grid-auto-flow", "row"))
	r.add("grid-flow-col", d("grid-auto-flow", "column"))
	r.add("grid-flow-dense", d("grid-auto-flow", "dense"))

	r.prefix("gap", false, valueHandler(spacing, "gap"))
	r.prefix("gap-x", false, valueHandler(spacing, "column-gap"))
	r.prefix("gap-y", false, valueHandler(spacing, "row-gap"))
}

func registerSpacing(r *registry) {
	sides := []struct {
		suffix string
		props  []string
	}{
		{"", []string{""}},
		{"x", []string{"-left", "-right"}},
		{"y", []string{"-top", "-bottom"}},
		{"t", []string{"-top"}},
		{"r", []string{"-right"}},
		{"b", []string{"-bottom"}},
		{"l", []string{"-left"}},
	}
	for _, base := range []struct {
		short, prop string
		resolve     func(string) (string, bool)
		negatable   bool
	}{
		{"p", "padding", spacing, false},
		{"m", "margin", marginValue, true},
	} {
		for _, s := range sides {
			props := make([]string, len(s.props))
			for i, p := range s.props {
				props[i] = base.prop + p
			}
			r.prefix(base.short+s.suffix, base.negatable, valueHandler(base.resolve, props...))
		}
	}

	between := func(prop string) handlerFunc {
		return func(v string, neg bool) (utility, bool) {
			val, ok := spacing(v)
			if !ok {
				return utility{}, false
			}
			return utility{
				decls: []decl{d(prop, negate(val, neg))},
				child: " > :not([hidden]) ~ :not([hidden])",
			}, true
		}
	}
	r.prefix("space-x", true, between("margin-left"))
	r.prefix("space-y", true, between("margin-top"))
}

func registerSizing(r *registry) {
	r.prefix("w", false, valueHandler(sizeAxis("100vw"), "width"))
	r.prefix("h", false, valueHandler(sizeAxis("100vh"), "height"))
	r.prefix("size", false, valueHandler(sizeAxis(""), "width", "height"))
	r.prefix("min-w", false, valueHandler(either(named(map[string]string{
		"0": "0px", "full": "100%", "min": "min-content", "max": "max-content", "fit": "fit-content",
	}), arbitrary), "min-width"))
	r.prefix("min-h", false, valueHandler(either(named(map[string]string{
		"0": "0px", "full": "100%", "screen": "100vh", "min": "min-content", "max": "max-content", "fit": "fit-content",
	}), spacing), "min-height"))
	r.prefix("max-w", false, valueHandler(either(named(maxWidths), arbitrary), "max-width"))
	r.prefix("max-h", false, valueHandler(either(named(map[string]string{
		"none": "none", "full": "100%", "screen": "100vh",
	}), spacing), "max-height"))
}

func registerTypography(r *registry) {
	r.add("font-sans", d("font-family", `ui-sans-serif, system-ui, sans-serif, "Apple Color Emoji", "Segoe UI Emoji"`))
	r.add("font-serif", d("font-family", `ui-serif, Georgia, Cambria, "Times New Roman", Times, serif`))
	r.add("font-mono", d("font-family", `ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, monospace`))
	for _, k := range sortedKeys(fontWeights) {
		r.add("font-"+k, d("font-weight", fontWeights[k]))
	}

	r.prefix("text", false, func(v string, _ bool) (utility, bool) {
		if fs, ok := fontSizes[v]; ok {
			return decls(d("font-size", fs[0]), d("line-height", fs[1])), true
		}
		if c, ok := color(v); ok {
			return decls(d("color", c)), true
		}
		if arb, ok := arbitrary(v); ok && !strings.HasPrefix(arb, "#") {
			return decls(d("font-size", arb)), true
		}
		return utility{}, false
	})
	for _, v := range []string{"left", "center", "right", "justify", "start", "end"} {
		r.add("text-"+v, d("text-align", v))
	}
	r.prefix("leading", false, valueHandler(either(named(lineHeights), spacing), "line-height"))
	r.prefix("tracking", false, valueHandler(named(tracking), "letter-spacing"))
	r.prefix("line-clamp", false, func(v string, _ bool) (utility, bool) {
		n, ok := integer(v, 6)
		if !ok || n == 0 {
			return utility{}, false
		}
		return decls(
			d("overflow", "hidden"), d("display", "-webkit-box"),
			d("-webkit-box-orient", "vertical"), d("-webkit-line-clamp", strconv.Itoa(n)),
		), true
	})

	r.add("uppercase", d("text-transform", "uppercase"))
	r.add("lowercase", d("text-transform", "lowercase"))
	r.add("capitalize", d("text-transform", "capitalize"))
	r.add("normal-case", d("text-transform", "none"))
	r.add("italic", d("font-style", "italic"))
	r.add("not-italic", d("font-style", "normal"))
	r.add("underline", d("text-decoration-line", "underline"))
	r.add("line-through", d("text-decoration-line", "line-through"))
	r.add("no-underline", d("text-decoration-line", "none"))
	r.add("truncate", d("overflow", "hidden"), d("text-overflow", "ellipsis"), d("white-space", "nowrap"))
	r.add("text-ellipsis", d("text-overflow", "ellipsis"))
	for _, v := range []string{"normal", "nowrap", "pre", "pre-line", "pre-wrap", "break-spaces"} {
		r.add("whitespace-"+v, d("white-space", v))
	}
	r.add("break-words", d("overflow-wrap", "break-word"))
	r.add("break-all", d("word-break", "break-all"))
	r.add("antialiased", d("-webkit-font-smoothing", "antialiased"), d("-moz-osx-font-smoothing", "grayscale"))
	r.add("tabular-nums", d("font-variant-numeric", "tabular-nums"))
	r.add("list-none", d("list-style-type", "none"))
	r.add("list-disc", d("list-style-type", "disc"))
	r.add("list-decimal", d("list-style-type", "decimal"))
}

func registerBackgrounds(r *registry) {
	for _, k := range sortedKeys(gradientDirections) {
		r.add("bg-gradient-to-"+k, d("background-image", "linear-gradient("+gradientDirections[k]+", var(--tw-gradient-stops))"))
	}
	r.add("bg-none", d("background-image", "none"))
	r.add("bg-cover", d("background-size", "cover"))
	r.add("bg-contain", d("background-size", "contain"))
	r.add("bg-center", d("background-position", "center"))
	r.add("bg-no-repeat", d("background-repeat", "no-repeat"))
	r.add("bg-fixed", d("background-attachment", "fixed"))
	r.prefix("bg", false, valueHandler(color, "background-color"))

	r.prefix("from", false, func(v string, _ bool) (utility, bool) {
		c, ok := color(v)
		if !ok {
			return utility{}, false
		}
		return decls(
			d("--tw-gradient-from", c),
			d("--tw-gradient-to", "transparent"),
			d("--tw-gradient-stops", "var(--tw-gradient-from), var(--tw-gradient-to)"),
		), true
	})
	r.prefix("via", false, func(v string, _ bool) (utility, bool) {
		c, ok := color(v)
		if !ok {
			return utility{}, false
		}
		return decls(
			d("--tw-gradient-to", "transparent"),
			d("--tw-gradient-stops", "var(--tw-gradient-from), "+c+", var(--tw-gradient-to)"),
		), true
	})
	r.prefix("to", false, valueHandler(color, "--tw-gradient-to"))
	r.prefix("fill", false, valueHandler(color, "fill"))
	r.prefix("stroke", false, valueHandler(color, "stroke"))
	r.prefix("accent", false, valueHandler(color, "accent-color"))
	r.prefix("caret", false, valueHandler(color, "caret-color"))
}

func borderWidth(v string) (string, bool) {
	switch v {
	case "0", "2", "4", "8":
		return v + "px", true
	}
	return "", false
}

func registerBorders(r *registry) {
	r.add("border", d("border-width", "1px"))
	sides := map[string][]string{
		"t": {"border-top-width"}, "r": {"border-right-width"},
		"b": {"border-bottom-width"}, "l": {"border-left-width"},
		"x": {"border-left-width", "border-right-width"},
		"y": {"border-top-width", "border-bottom-width"},
	}
	for _, s := range []string{"t", "r", "b", "l", "x", "y"} {
		props := sides[s]
		ds := make([]decl, len(props))
		for i, p := range props {
			ds[i] = d(p, "1px")
		}
		r.add("border-"+s, ds...)
		r.prefix("border-"+s, false, valueHandler(borderWidth, props...))
	}
	for _, v := range []string{"solid", "dashed", "dotted", "double", "none"} {
		r.add("border-"+v, d("border-style", v))
	}
	r.prefix("border", false, func(v string, _ bool) (utility, bool) {
		if w, ok := borderWidth(v); ok {
			return decls(d("border-width", w)), true
		}
		if c, ok := color(v); ok {
			return decls(d("border-color", c)), true
		}
		return utility{}, false
	})

	r.add("rounded", d("border-radius", radii[""]))
	r.prefix("rounded", false, valueHandler(named(radii), "border-radius"))
	corners := map[string][]string{
		"t":  {"border-top-left-radius", "border-top-right-radius"},
		"r":  {"border-top-right-radius", "border-bottom-right-radius"},
		"b":  {"border-bottom-right-radius", "border-bottom-left-radius"},
		"l":  {"border-top-left-radius", "border-bottom-left-radius"},
		"tl": {"border-top-left-radius"},
		"tr": {"border-top-right-radius"},
		"br": {"border-bottom-right-radius"},
		"bl": {"border-bottom-left-radius"},
	}
	for _, c := range []string{"t", "r", "b", "l", "tl", "tr", "br", "bl"} {
		props := corners[c]
		ds := make([]decl, len(props))
		for i, p := range props {
			ds[i] = d(p, radii[""])
		}
		r.add("rounded-"+c, ds...)
		r.prefix("rounded-"+c, false, valueHandler(named(radii), props...))
	}

	r.addUtility("divide-y", utility{
		decls: []decl{d("border-top-width", "1px")},
		child: " > :not([hidden]) ~ :not([hidden])",
	})
	r.addUtility("divide-x", utility{
		decls: []decl{d("border-left-width", "1px")},
		child: " > :not([hidden]) ~ :not([hidden])",
	})
}

func ringWidth(v string) (string, bool) {
	switch v {
	case "0", "1", "2", "4", "8":
		return v + "px", true
	}
	return "", false
}

func ring(width string) utility {
	return decls(
		d("--tw-ring-offset-shadow", "0 0 0 var(--tw-ring-offset-width, 0px) var(--tw-ring-offset-color, #fff)"),
		d("--tw-ring-shadow", "0 0 0 calc("+width+" + var(--tw-ring-offset-width, 0px)) var(--tw-ring-color, rgb(59 130 246 / 0.5))"),
		d("box-shadow", "var(--tw-ring-offset-shadow), var(--tw-ring-shadow), var(--tw-shadow, 0 0 #0000)"),
	)
}

func registerEffects(r *registry) {
	r.add("shadow", d("--tw-shadow", shadows[""]), d("box-shadow", shadowStack))
	r.prefix("shadow", false, func(v string, _ bool) (utility, bool) {
		s, ok := shadows[v]
		if !ok {
			return utility{}, false
		}
		return decls(d("--tw-shadow", s), d("box-shadow", shadowStack)), true
	})

	r.prefix("opacity", false, func(v string, _ bool) (utility, bool) {
		n, ok := integer(v, 100)
		if !ok || n%5 != 0 {
			return utility{}, false
		}
		return decls(d("opacity", formatFloat(float64(n)/100))), true
	})

	r.addUtility("ring", ring("3px"))
	r.prefix("ring", false, func(v string, _ bool) (utility, bool) {
		if w, ok := ringWidth(v); ok {
			return ring(w), true
		}
		if c, ok := color(v); ok {
			return decls(d("--tw-ring-color", c)), true
		}
		return utility{}, false
	})
	r.prefix("ring-offset", false, func(v string, _ bool) (utility, bool) {
		if w, ok := ringWidth(v); ok {
			return decls(d("--tw-ring-offset-width", w)), true
		}
		if c, ok := color(v); ok {
			return decls(d("--tw-ring-offset-color", c)), true
		}
		return utility{}, false
	})
	r.add("outline-none", d("outline", "2px solid transparent"), d("outline-offset", "2px"))
	r.add("outline", d("outline-style", "solid"))

	r.add("blur", d("filter", "blur("+blurs[""]+")"))
	r.prefix("blur", false, func(v string, _ bool) (utility, bool) {
		b, ok := blurs[v]
		if !ok {
			return utility{}, false
		}
		return decls(d("filter", "blur("+b+")")), true
	})
	r.add("backdrop-blur", d("backdrop-filter", "blur("+blurs[""]+")"))
	r.prefix("backdrop-blur", false, func(v string, _ bool) (utility, bool) {
		b, ok := blurs[v]
		if !ok {
			return utility{}, false
		}
		return decls(d("backdrop-filter", "blur("+b+")")), true
	})

	r.add("transition",
		d("transition-property", colorProps+", opacity, box-shadow, transform, filter, backdrop-filter"),
		d("transition-timing-function", easeDefault), d("transition-duration", "150ms"))
	transitions := map[string]string{
		"all": "all", "colors": colorProps, "opacity": "opacity",
		"shadow": "box-shadow", "transform": "transform",
	}
	for _, k := range sortedKeys(transitions) {
		r.add("transition-"+k, d("transition-property", transitions[k]),
			d("transition-timing-function", easeDefault), d("transition-duration", "150ms"))
	}
	r.add("transition-none", d("transition-property", "none"))
	ms := func(prop string) handlerFunc {
		return func(v string, _ bool) (utility, bool) {
			if _, ok := integer(v, 1000); !ok {
				return utility{}, false
			}
			return decls(d(prop, v+"ms")), true
		}
	}
	r.prefix("duration", false, ms("transition-duration"))
	r.prefix("delay", false, ms("transition-delay"))
	eases := map[string]string{
		"linear": "linear", "in": "cubic-bezier(0.4, 0, 1, 1)",
		"out": "cubic-bezier(0, 0, 0.2, 1)", "in-out": easeDefault,
	}
	for _, k := range sortedKeys(eases) {
		r.add("ease-"+k, d("transition-timing-function", eases[k]))
	}
	for _, name := range sortedKeys(animations) {
		r.addUtility("animate-"+name, utility{decls: []decl{d("animation", animations[name])}, keyframes: name})
	}
	r.add("animate-none", d("animation", "none"))
}

func registerTransforms(r *registry) {
	r.prefix("scale", false, func(v string, _ bool) (utility, bool) {
		switch v {
		case "0", "50", "75", "90", "95", "100", "105", "110", "125", "150":
		default:
			return utility{}, false
		}
		n, _ := strconv.Atoi(v)
		s := formatFloat(float64(n) / 100)
		return decls(d("--tw-scale-x", s), d("--tw-scale-y", s), d("transform", transformValue)), true
	})
	r.prefix("rotate", true, func(v string, neg bool) (utility, bool) {
		switch v {
		case "0", "1", "2", "3", "6", "12", "45", "90", "180":
		default:
			return utility{}, false
		}
		return decls(d("--tw-rotate", negate(v+"deg", neg)), d("transform", transformValue)), true
	})
	translate := func(axis string) handlerFunc {
		return func(v string, neg bool) (utility, bool) {
			val, ok := size(v, "")
			if !ok || val == "auto" {
				return utility{}, false
			}
			return decls(d("--tw-translate-"+axis, negate(val, neg)), d("transform", transformValue)), true
		}
	}
	r.prefix("translate-x", true, translate("x"))
	r.prefix("translate-y", true, translate("y"))
	r.add("transform", d("transform", transformValue))
	r.add("transform-none", d("transform", "none"))
}

func registerInteractivity(r *registry) {
	for _, v := range []string{"auto", "default", "pointer", "wait", "text", "move", "help", "not-allowed", "grab", "grabbing", "crosshair"} {
		r.add("cursor-"+v, d("cursor", v))
	}
	r.add("pointer-events-none", d("pointer-events", "none"))
	r.add("pointer-events-auto", d("pointer-events", "auto"))
	r.add("select-none", d("user-select", "none"))
	r.add("select-text", d("user-select", "text"))
	r.add("select-all", d("user-select", "all"))
	r.add("resize-none", d("resize", "none"))
	r.add("resize", d("resize", "both"))
	r.add("appearance-none", d("appearance", "none"))
	r.add("touch-none", d("touch-action", "none"))
	r.add("scroll-smooth", d("scroll-behavior", "smooth"))
}
