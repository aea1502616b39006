package util

import (
	"regexp"
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// IsValidSessionID accepts the identifiers a scanning client may request:
// URL-safe, bounded length.
func IsValidSessionID(s string) bool {
	if s == "" {
		return false
	}
	return sessionIDRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
