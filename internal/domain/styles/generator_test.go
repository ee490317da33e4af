package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declsOf(t *testing.T, class string) map[string]string {
	t.Helper()
	r, ok := New(nil).parse(class)
	require.True(t, ok, class)
	out := make(map[string]string, len(r.u.decls))
	for _, dcl := range r.u.decls {
		out[dcl.prop] = dcl.value
	}
	return out
}

func TestUtilities(t *testing.T) {
	tests := []struct {
		class string
		prop  string
		want  string
	}{
		{"p-4", "padding", "1rem"},
		{"px-2.5", "padding-left", "0.625rem"},
		{"-mt-2", "margin-top", "-0.5rem"},
		{"mx-auto", "margin-right", "auto"},
		{"w-1/2", "width", "50%"},
		{"w-1/3", "width", "33.333333%"},
		{"h-screen", "height", "100vh"},
		{"w-[342px]", "width", "342px"},
		{"max-w-md", "max-width", "28rem"},
		{"min-h-20", "min-height", "5rem"},
		{"grid-cols-3", "grid-template-columns", "repeat(3, minmax(0, 1fr))"},
		{"col-span-2", "grid-column", "span 2 / span 2"},
		{"text-sm", "font-size", "0.875rem"},
		{"text-slate-400", "color", "#94a3b8"},
		{"text-muted-foreground", "color", "hsl(var(--muted-foreground))"},
		{"bg-primary/90", "background-color", "hsl(var(--primary) / 0.9)"},
		{"bg-slate-800/60", "background-color", "rgb(30 41 59 / 0.6)"},
		{"bg-white/10", "background-color", "rgb(255 255 255 / 0.1)"},
		{"border-slate-700", "border-color", "#334155"},
		{"border-2", "border-width", "2px"},
		{"border-t", "border-top-width", "1px"},
		{"rounded-lg", "border-radius", "0.5rem"},
		{"rounded-t-xl", "border-top-left-radius", "0.75rem"},
		{"opacity-50", "opacity", "0.5"},
		{"ring-offset-2", "--tw-ring-offset-width", "2px"},
		{"ring-ring", "--tw-ring-color", "hsl(var(--ring))"},
		{"shadow-sm", "--tw-shadow", "0 1px 2px 0 rgb(0 0 0 / 0.05)"},
		{"-translate-x-1/2", "--tw-translate-x", "-50%"},
		{"z-50", "z-index", "50"},
		{"font-semibold", "font-weight", "600"},
		{"tracking-tight", "letter-spacing", "-0.025em"},
		{"leading-none", "line-height", "1"},
		{"flex-1", "flex", "1 1 0%"},
		{"items-center", "align-items", "center"},
		{"justify-between", "justify-content", "space-between"},
		{"from-indigo-500", "--tw-gradient-from", "#6366f1"},
		{"to-cyan-400", "--tw-gradient-to", "#22d3ee"},
		{"duration-300", "transition-duration", "300ms"},
		{"cursor-not-allowed", "cursor", "not-allowed"},
		{"accent-primary", "accent-color", "hsl(var(--primary))"},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			assert.Equal(t, tt.want, declsOf(t, tt.class)[tt.prop])
		})
	}
}

func TestUnknownClassesIgnored(t *testing.T) {
	g := New(nil)
	for _, c := range []string{"p-13", "text-chartreuse-500", "w-1/0", "foo", "hover:", "weird:p-4", "sm:md:p-4", "opacity-33", "bg-slate-800/150"} {
		_, ok := g.parse(c)
		assert.False(t, ok, c)
	}
}

func TestVariantSelectors(t *testing.T) {
	tests := []struct {
		class      string
		selector   string
		breakpoint int
	}{
		{"hover:bg-primary/90", `.hover\:bg-primary\/90:hover`, 0},
		{"md:hover:p-2", `.md\:hover\:p-2:hover`, 2},
		{"dark:text-white", `.dark .dark\:text-white`, 0},
		{"focus:placeholder:text-slate-400", `.focus\:placeholder\:text-slate-400:focus::placeholder`, 0},
		{"peer-disabled:opacity-70", `.peer:disabled ~ .peer-disabled\:opacity-70`, 0},
		{"space-y-1.5", `.space-y-1\.5 > :not([hidden]) ~ :not([hidden])`, 0},
		{"lg:w-[calc(100%-2rem)]", `.lg\:w-\[calc\(100\%-2rem\)\]`, 3},
	}

	g := New(nil)
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			r, ok := g.parse(tt.class)
			require.True(t, ok)
			assert.Equal(t, tt.selector, r.selector)
			assert.Equal(t, tt.breakpoint, r.breakpoint)
		})
	}
}

func TestClassesFromBundleText(t *testing.T) {
	bundle := []byte(`function A(){return jsx("div",{className:"flex p-4 md:p-8 hover:bg-slate-100 not-a-class"})}` +
		`const b="text-sm font-medium";`)

	g := New([]string{"animate-spin"})
	classes := g.Classes(bundle)

	for _, c := range []string{"flex", "p-4", "md:p-8", "hover:bg-slate-100", "text-sm", "font-medium", "animate-spin", "rounded-2xl"} {
		assert.Contains(t, classes, c)
	}
	assert.NotContains(t, classes, "not-a-class")
	assert.NotContains(t, classes, "className:")

	// Breakpoint rules come last.
	assert.Equal(t, "md:p-8", classes[len(classes)-1])
}

func TestRenderGroupsMediaAndKeyframes(t *testing.T) {
	g := New(nil)
	css := render(g.rules([][]byte{[]byte("p-2 md:p-4 md:m-2 animate-spin")}))

	assert.Equal(t, 1, strings.Count(css, "@media (min-width: 768px) {"))
	assert.Contains(t, css, ".p-2 {padding:0.5rem}")
	assert.Contains(t, css, "@keyframes spin")
	assert.Less(t, strings.Index(css, ".p-2 "), strings.Index(css, "@media"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	content := []byte(`"grid grid-cols-2 gap-4 p-4 text-lg font-bold bg-card text-card-foreground shadow-sm rounded-lg"`)

	first, err := New([]string{"bg-red-500"}).Generate([]byte(".app{color:red}"), content)
	require.NoError(t, err)
	second, err := New([]string{"bg-red-500"}).Generate([]byte(".app{color:red}"), content)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	css := string(first)
	assert.Contains(t, css, ".p-4{padding:1rem}")
	assert.Contains(t, css, ".app{color:red}")
	assert.Contains(t, css, "--primary:")
	assert.Contains(t, css, "#root{min-height:100vh}")
	assert.Less(t, strings.Index(css, "--primary:"), strings.Index(css, ".app{"))
	assert.Less(t, strings.Index(css, ".app{"), strings.Index(css, ".p-4{"))
	assert.NotContains(t, css, "\n\n")
}
