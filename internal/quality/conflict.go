package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

const (
	// SimilarityThreshold is the score above which two titles are treated as
	// the same release.
	SimilarityThreshold = 0.7

	// ConflictTolerance is the largest time disagreement tolerated between
	// sources for the same release.
	ConflictTolerance = 5 * time.Minute

	// initialsScore is assigned when one title is the initialism of the other.
	initialsScore = 0.8
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	wordSplit = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// CheckCrossSourceConflicts compares events of the same currency coming from
// different sources and reports pairs that look like the same release but
// disagree on time by more than ConflictTolerance. Advisory only: nothing is
// merged or dropped.
func CheckCrossSourceConflicts(events []models.CalendarEvent) []models.DataIssue {
	byCurrency := make(map[string][]models.CalendarEvent)
	var order []string
	for _, ev := range events {
		if _, ok := byCurrency[ev.Currency]; !ok {
			order = append(order, ev.Currency)
		}
		byCurrency[ev.Currency] = append(byCurrency[ev.Currency], ev)
	}

	var issues []models.DataIssue
	for _, currency := range order {
		group := byCurrency[currency]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Source == b.Source || a.TimeISO == nil || b.TimeISO == nil {
					continue
				}
				score := TitleSimilarity(a.Title, b.Title)
				if score <= SimilarityThreshold {
					continue
				}
				diff := math.Abs(a.TimeISO.Sub(*b.TimeISO).Minutes())
				if diff <= ConflictTolerance.Minutes() {
					continue
				}
				issues = append(issues, models.NewSourceIssue(models.SourceMerge, models.IssueCrossSourceConflict,
					fmt.Sprintf("%s %q: %s reports %s, %s reports %s (%.0f min apart)",
						currency, a.Title,
						a.Source, a.TimeISO.Format(time.RFC3339),
						b.Source, b.TimeISO.Format(time.RFC3339), diff),
					map[string]interface{}{
						"currency":     currency,
						"title_a":      a.Title,
						"title_b":      b.Title,
						"source_a":     string(a.Source),
						"source_b":     string(b.Source),
						"time_a":       a.TimeISO.Format(time.RFC3339),
						"time_b":       b.TimeISO.Format(time.RFC3339),
						"event_a":      a.ID(),
						"event_b":      b.ID(),
						"similarity":   score,
						"diff_minutes": diff,
					}))
			}
		}
	}
	return issues
}

// TitleSimilarity scores two titles in [0,1].
//
// The scoring is a deliberately simple heuristic: exact match after
// normalization is 1.0, containment scores shorter/longer, an initialism of the
// other title's words scores 0.8, and anything else scores the share of equal
// characters at equal positions. It misranks most abbreviations that are not
// plain initialisms.
func TitleSimilarity(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}

	if isInitialism(na, b) || isInitialism(nb, a) {
		return initialsScore
	}

	same := 0
	for i := 0; i < len(shorter); i++ {
		if shorter[i] == longer[i] {
			same++
		}
	}
	return float64(same) / float64(len(longer))
}

func normalizeTitle(title string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(title), "")
}

// isInitialism reports whether abbr equals the first letters of the words of full.
func isInitialism(abbr, full string) bool {
	words := wordSplit.Split(full, -1)
	var initials strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		initials.WriteByte(w[0])
	}
	letters := strings.ToLower(initials.String())
	return len(letters) > 1 && letters == abbr
}
