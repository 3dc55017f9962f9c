package commands

import (
	"errors"
	"strconv"
	"strings"
)

// ErrBadThreshold reports a threshold input that is not a small positive
// integer.
var ErrBadThreshold = errors.New("threshold must be a whole number between 1 and 999")

// ParseThreshold parses a user-supplied member count. Accepted values are
// 1..999 with optional surrounding whitespace; anything else fails.
func ParseThreshold(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > 3 {
		return 0, ErrBadThreshold
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrBadThreshold
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, ErrBadThreshold
	}
	return n, nil
}
