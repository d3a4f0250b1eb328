package models

import (
	"strings"
)

// EmptyValue is the single marker every "no data yet" value is normalized to.
const EmptyValue = "-"

var placeholders = map[string]struct{}{
	"":        {},
	"-":       {},
	"--":      {},
	"---":     {},
	"\u2014":  {}, // em dash
	"\u2013":  {}, // en dash
	"pending": {},
	"tbd":     {},
	"tba":     {},
	"n/a":     {},
	"na":      {},
	"...":     {},
	"\u2026":  {}, // ellipsis
}

// IsPlaceholder reports whether value means absence of data.
func IsPlaceholder(value string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// NormalizeValue returns EmptyValue for placeholders and the whitespace-collapsed
// value otherwise.
func NormalizeValue(value string) string {
	if IsPlaceholder(value) {
		return EmptyValue
	}
	return CollapseWhitespace(value)
}

// CollapseWhitespace trims value and folds internal runs of whitespace into one space.
func CollapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
