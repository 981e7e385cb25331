package config

import (
	"os"
	"strings"
)

// lookupEnv reads a bare (unprefixed) environment variable. Used for the
// handful of knobs the specification names directly rather than under the
// CRAWL_ prefix.
func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}

// splitCSV splits a comma-separated env value into trimmed, non-empty parts.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
