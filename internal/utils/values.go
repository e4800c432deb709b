package utils

import "strings"

func Ptr[T any](v T) *T {
	return &v
}

// FirstNonEmpty returns the first value that is not blank, or "" when all are.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
