// Package theme tracks the color theme preference. "auto" resolves against
// the terminal environment since there is no media query to observe.
package theme

import (
	"fmt"
	"os"
	"strings"
)

// Preference values.
const (
	Auto  = "auto"
	Light = "light"
	Dark  = "dark"
)

// Valid reports whether p is a known preference.
func Valid(p string) bool {
	return p == Auto || p == Light || p == Dark
}

// Resolve maps a preference to the applied theme (light or dark). An empty
// or invalid preference behaves as auto.
func Resolve(pref string) string {
	switch pref {
	case Light, Dark:
		return pref
	default:
		return detect()
	}
}

// detect guesses the terminal background. COLORFGBG is "fg;bg" with bg 0-6
// or 8 meaning a dark background. Unknown environments get light.
func detect() string {
	v := os.Getenv("COLORFGBG")
	if v == "" {
		return Light
	}
	parts := strings.Split(v, ";")
	bg := parts[len(parts)-1]
	switch bg {
	case "0", "1", "2", "3", "4", "5", "6", "8":
		return Dark
	default:
		return Light
	}
}

// ParsePreference validates user input for the theme setting.
func ParsePreference(s string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(s))
	if !Valid(p) {
		return "", fmt.Errorf("unknown theme %q (expected auto, light, or dark)", s)
	}
	return p, nil
}
