package config

import (
	"os"
	"regexp"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references in raw YAML bytes with the current
// process environment, the way the teacher's config loader expands
// `tarsy.yaml` before parsing. References to unset variables are left
// untouched so a typo is visible in the parsed struct rather than silently
// becoming an empty string.
func expandEnv(raw []byte) []byte {
	return envRefPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envRefPattern.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return match
	})
}
