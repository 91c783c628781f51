package domain

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders from vars. Unknown names render empty.
func Render(body string, vars map[string]string) string {
	out := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return ""
		}
		return vars[sub[1]]
	})
	return strings.TrimSpace(out)
}

// Placeholders returns the distinct placeholder names used in body, in order.
func Placeholders(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
