package models

import (
	"fmt"
	"strings"
	"time"
)

// SourcePreference selects which upstream family a subscriber reads from.
type SourcePreference string

const (
	PreferenceForexFactory SourcePreference = "forexfactory"
	PreferenceMyfxbook     SourcePreference = "myfxbook"
	PreferenceBoth         SourcePreference = "both"
)

// ParseSourcePreference accepts the canonical names and a few aliases.
func ParseSourcePreference(raw string) (SourcePreference, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "both", "all":
		return PreferenceBoth, nil
	case "forexfactory", "ff", "first":
		return PreferenceForexFactory, nil
	case "myfxbook", "mfb", "second":
		return PreferenceMyfxbook, nil
	default:
		return "", fmt.Errorf("unknown source preference %q", raw)
	}
}

// Subscriber is the already-resolved view of one subscriber's preferences.
type Subscriber struct {
	ID         string           `json:"id" yaml:"id"`
	Currencies []string         `json:"currencies" yaml:"currencies"`
	Preference SourcePreference `json:"source" yaml:"source"`
	TimeZone   string           `json:"timezone" yaml:"timezone"`
}

// Location resolves the subscriber's display zone, falling back to UTC.
func (s Subscriber) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WantsCurrency reports whether the subscriber monitors code. An empty
// currency set means every currency.
func (s Subscriber) WantsCurrency(code string) bool {
	if len(s.Currencies) == 0 {
		return true
	}
	for _, c := range s.Currencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
