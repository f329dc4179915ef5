package schema

import (
	"strconv"
	"strings"
)

// ParseTabID validates and parses a tab identifier.
// Allowed values: non-negative decimal integers.
func ParseTabID(value string) (TabID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidRequest
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, ErrInvalidRequest
	}
	return TabID(n), nil
}

// ParseTabIDs parses every value and drops duplicates, keeping first-seen order.
func ParseTabIDs(values []string) ([]TabID, error) {
	out := make([]TabID, 0, len(values))
	seen := make(map[TabID]struct{}, len(values))
	for _, value := range values {
		id, err := ParseTabID(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ParseWindowID validates and parses a window identifier.
func ParseWindowID(value string) (WindowID, error) {
	id, err := ParseTabID(value)
	if err != nil {
		return 0, err
	}
	return WindowID(id), nil
}
