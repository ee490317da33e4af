package styles

import (
	"fmt"
	"strconv"
	"strings"
)

var shades = []string{"50", "100", "200", "300", "400", "500", "600", "700", "800", "900", "950"}

var palette = map[string][11]string{
	"slate":   {"#f8fafc", "#f1f5f9", "#e2e8f0", "#cbd5e1", "#94a3b8", "#64748b", "#475569", "#334155", "#1e293b", "#0f172a", "#020617"},
	"gray":    {"#f9fafb", "#f3f4f6", "#e5e7eb", "#d1d5db", "#9ca3af", "#6b7280", "#4b5563", "#374151", "#1f2937", "#111827", "#030712"},
	"zinc":    {"#fafafa", "#f4f4f5", "#e4e4e7", "#d4d4d8", "#a1a1aa", "#71717a", "#52525b", "#3f3f46", "#27272a", "#18181b", "#09090b"},
	"red":     {"#fef2f2", "#fee2e2", "#fecaca", "#fca5a5", "#f87171", "#ef4444", "#dc2626", "#b91c1c", "#991b1b", "#7f1d1d", "#450a0a"},
	"orange":  {"#fff7ed", "#ffedd5", "#fed7aa", "#fdba74", "#fb923c", "#f97316", "#ea580c", "#c2410c", "#9a3412", "#7c2d12", "#431407"},
	"amber":   {"#fffbeb", "#fef3c7", "#fde68a", "#fcd34d", "#fbbf24", "#f59e0b", "#d97706", "#b45309", "#92400e", "#78350f", "#451a03"},
	"yellow":  {"#fefce8", "#fef9c3", "#fef08a", "#fde047", "#facc15", "#eab308", "#ca8a04", "#a16207", "#854d0e", "#713f12", "#422006"},
	"green":   {"#f0fdf4", "#dcfce7", "#bbf7d0", "#86efac", "#4ade80", "#22c55e", "#16a34a", "#15803d", "#166534", "#14532d", "#052e16"},
	"emerald": {"#ecfdf5", "#d1fae5", "#a7f3d0", "#6ee7b7", "#34d399", "#10b981", "#059669", "#047857", "#065f46", "#064e3b", "#022c22"},
	"teal":    {"#f0fdfa", "#ccfbf1", "#99f6e4", "#5eead4", "#2dd4bf", "#14b8a6", "#0d9488", "#0f766e", "#115e59", "#134e4a", "#042f2e"},
	"cyan":    {"#ecfeff", "#cffafe", "#a5f3fc", "#67e8f9", "#22d3ee", "#06b6d4", "#0891b2", "#0e7490", "#155e75", "#164e63", "#083344"},
	"sky":     {"#f0f9ff", "#e0f2fe", "#bae6fd", "#7dd3fc", "#38bdf8", "#0ea5e9", "#0284c7", "#0369a1", "#075985", "#0c4a6e", "#082f49"},
	"blue":    {"#eff6ff", "#dbeafe", "#bfdbfe", "#93c5fd", "#60a5fa", "#3b82f6", "#2563eb", "#1d4ed8", "#1e40af", "#1e3a8a", "#172554"},
	"indigo":  {"#eef2ff", "#e0e7ff", "#c7d2fe", "#a5b4fc", "#818cf8", "#6366f1", "#4f46e5", "#4338ca", "#3730a3", "#312e81", "#1e1b4b"},
	"violet":  {"#f5f3ff", "#ede9fe", "#ddd6fe", "#c4b5fd", "#a78bfa", "#8b5cf6", "#7c3aed", "#6d28d9", "#5b21b6", "#4c1d95", "#2e1065"},
	"purple":  {"#faf5ff", "#f3e8ff", "#e9d5ff", "#d8b4fe", "#c084fc", "#a855f7", "#9333ea", "#7e22ce", "#6b21a8", "#581c87", "#3b0764"},
	"pink":    {"#fdf2f8", "#fce7f3", "#fbcfe8", "#f9a8d4", "#f472b6", "#ec4899", "#db2777", "#be185d", "#9d174d", "#831843", "#500724"},
	"rose":    {"#fff1f2", "#ffe4e6", "#fecdd3", "#fda4af", "#fb7185", "#f43f5e", "#e11d48", "#be123c", "#9f1239", "#881337", "#4c0519"},
}

// tokenColors are the design-token colors, defined as HSL triples in the
// base layer.
var tokenColors = map[string]bool{
	"background": true, "foreground": true,
	"card": true, "card-foreground": true,
	"popover": true, "popover-foreground": true,
	"primary": true, "primary-foreground": true,
	"secondary": true, "secondary-foreground": true,
	"muted": true, "muted-foreground": true,
	"accent": true, "accent-foreground": true,
	"destructive": true, "destructive-foreground": true,
	"border": true, "input": true, "ring": true,
}

var keywordColors = map[string]string{
	"white":       "#fff",
	"black":       "#000",
	"transparent": "transparent",
	"current":     "currentColor",
	"inherit":     "inherit",
}

// color resolves a color name with an optional /<opacity> modifier.
func color(v string) (string, bool) {
	name, alpha, hasAlpha := strings.Cut(v, "/")
	var a float64
	if hasAlpha {
		n, err := strconv.Atoi(alpha)
		if err != nil || n < 0 || n > 100 {
			return "", false
		}
		a = float64(n) / 100
	}

	if tokenColors[name] {
		if hasAlpha {
			return fmt.Sprintf("hsl(var(--%s) / %s)", name, formatFloat(a)), true
		}
		return fmt.Sprintf("hsl(var(--%s))", name), true
	}

	var hex string
	if kw, ok := keywordColors[name]; ok {
		if !strings.HasPrefix(kw, "#") {
			return kw, !hasAlpha
		}
		hex = kw
	} else if arb, ok := arbitrary(name); ok && strings.HasPrefix(arb, "#") {
		hex = arb
	} else {
		family, shade, ok := strings.Cut(name, "-")
		if !ok {
			return "", false
		}
		scale, ok := palette[family]
		if !ok {
			return "", false
		}
		idx := indexOf(shades, shade)
		if idx < 0 {
			return "", false
		}
		hex = scale[idx]
	}

	if !hasAlpha {
		return hex, true
	}
	r, g, b, ok := parseHex(hex)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("rgb(%d %d %d / %s)", r, g, b, formatFloat(a)), true
}

func parseHex(hex string) (r, g, b int, ok bool) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return 0, 0, 0, false
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff), true
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
