package styles

import (
	"regexp"
	"strconv"
	"strings"
)

var spacingSteps = map[string]bool{
	"0": true, "0.5": true, "1": true, "1.5": true, "2": true, "2.5": true,
	"3": true, "3.5": true, "4": true, "5": true, "6": true, "7": true,
	"8": true, "9": true, "10": true, "11": true, "12": true, "14": true,
	"16": true, "20": true, "24": true, "28": true, "32": true, "36": true,
	"40": true, "44": true, "48": true, "52": true, "56": true, "60": true,
	"64": true, "72": true, "80": true, "96": true,
}

var arbitraryValue = regexp.MustCompile(`^\[([A-Za-z0-9.#%,_()+-]+)\]$`)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// arbitrary unwraps a bracketed value such as [42px], with underscores
// standing for spaces.
func arbitrary(v string) (string, bool) {
	m := arbitraryValue.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], "_", " "), true
}

// spacing resolves a value on the spacing scale.
func spacing(v string) (string, bool) {
	switch v {
	case "0":
		return "0px", true
	case "px":
		return "1px", true
	}
	if arb, ok := arbitrary(v); ok {
		return arb, true
	}
	if !spacingSteps[v] {
		return "", false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "", false
	}
	return formatFloat(n*0.25) + "rem", true
}

// fraction resolves n/d as a percentage.
func fraction(v string) (string, bool) {
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		return "", false
	}
	n, err1 := strconv.Atoi(num)
	d, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil || d <= 0 || d > 12 || n <= 0 || n >= d {
		return "", false
	}
	pct := float64(n) * 100 / float64(d)
	return strconv.FormatFloat(pct, 'f', 6, 64) + "%", true
}

// size resolves sizing values: spacing, fractions and keywords. screen
// maps to vw or vh depending on axis.
func size(v, screen string) (string, bool) {
	switch v {
	case "auto":
		return "auto", true
	case "full":
		return "100%", true
	case "screen":
		return screen, screen != ""
	case "min":
		return "min-content", true
	case "max":
		return "max-content", true
	case "fit":
		return "fit-content", true
	}
	if s, ok := fraction(v); ok {
		return trimZeros(s), true
	}
	return spacing(v)
}

func trimZeros(pct string) string {
	num := strings.TrimSuffix(pct, "%")
	num = strings.TrimRight(strings.TrimRight(num, "0"), ".")
	return num + "%"
}

func negate(v string, neg bool) string {
	if !neg || v == "0px" || v == "auto" {
		return v
	}
	if strings.HasPrefix(v, "-") {
		return strings.TrimPrefix(v, "-")
	}
	if strings.ContainsAny(v, "( ") {
		return "calc(" + v + " * -1)"
	}
	return "-" + v
}

// integer resolves a plain non-negative integer within max.
func integer(v string, max int) (int, bool) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	return n, true
}
