package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SplitList converts a comma-separated setting into a cleaned list.
func SplitList(value string) []string {
	return CleanList(strings.Split(value, ","))
}

// CleanList trims entries and drops empty values and repeats, keeping order.
func CleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// SetOf builds a lookup set from a list.
func SetOf(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ParseBlurThreshold parses and validates a blur threshold value.
func ParseBlurThreshold(value string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0, fmt.Errorf("invalid blur threshold %q", value)
	}
	return parsed, nil
}
