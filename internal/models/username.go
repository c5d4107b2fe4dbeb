package models

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9.-]{3,16}$`)

// ValidUsername reports whether name is a syntactically valid Hive account:
// 3-16 chars of [a-z0-9.-], not starting or ending with '.' or '-', and
// without doubled separators.
func ValidUsername(name string) bool {
	if !usernamePattern.MatchString(name) {
		return false
	}
	if strings.ContainsAny(name[:1], ".-") || strings.ContainsAny(name[len(name)-1:], ".-") {
		return false
	}
	return !strings.Contains(name, "..") && !strings.Contains(name, "--")
}

// NormalizeUsername lowercases and strips a leading '@'
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}
