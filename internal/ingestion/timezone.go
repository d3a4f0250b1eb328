package ingestion

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultSourceZone is assumed when a source's display zone cannot be determined.
const DefaultSourceZone = "America/New_York"

var clockLayouts = []string{"3:04pm", "3pm", "15:04", "3:04 pm", "3 pm"}

// parseClock reads a display time such as "8:30am" or "14:00".
func parseClock(raw string) (hour, minute int, ok bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}

// timeCarrier resolves display times for sources that print a release time
// only on the first row of a simultaneous group. An empty cell inherits the
// last concrete time; any other non-time string resets the memory.
type timeCarrier struct {
	last string
}

// resolve returns the effective display string and whether it is a concrete time.
func (c *timeCarrier) resolve(raw string) (string, bool) {
	s := models.CollapseWhitespace(raw)
	if s == "" {
		if c.last == "" {
			return "", false
		}
		return c.last, true
	}
	if _, _, ok := parseClock(s); ok {
		c.last = s
		return s, true
	}
	c.last = ""
	return s, false
}

func (c *timeCarrier) reset() {
	c.last = ""
}

// instantIn combines a calendar date with a display time in loc. Special or
// unparseable times yield nil rather than a guess.
func instantIn(date time.Time, display string, loc *time.Location) *time.Time {
	hour, minute, ok := parseClock(display)
	if !ok {
		return nil
	}
	t := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc).UTC()
	if !models.ValidInstant(t) {
		return nil
	}
	return &t
}

// inferYear picks the year for a month/day printed without one, relative to
// the fetch instant, rolling over across the December/January boundary.
func inferYear(month time.Month, ref time.Time) int {
	switch {
	case ref.Month() == time.December && month == time.January:
		return ref.Year() + 1
	case ref.Month() == time.January && month == time.December:
		return ref.Year() - 1
	default:
		return ref.Year()
	}
}

// offsetZones approximates a UTC offset, in minutes, with a representative
// IANA zone. Offsets shared by several zones resolve to one of them, so DST
// rules follow that zone.
var offsetZones = map[int]string{
	-720: "Etc/GMT+12",
	-660: "Pacific/Pago_Pago",
	-600: "Pacific/Honolulu",
	-540: "America/Anchorage",
	-480: "America/Los_Angeles",
	-420: "America/Denver",
	-360: "America/Chicago",
	-300: "America/New_York",
	-240: "America/Halifax",
	-210: "America/St_Johns",
	-180: "America/Sao_Paulo",
	-120: "Atlantic/South_Georgia",
	-60:  "Atlantic/Azores",
	0:    "Europe/London",
	60:   "Europe/Berlin",
	120:  "Europe/Athens",
	180:  "Europe/Moscow",
	210:  "Asia/Tehran",
	240:  "Asia/Dubai",
	270:  "Asia/Kabul",
	300:  "Asia/Karachi",
	330:  "Asia/Kolkata",
	345:  "Asia/Kathmandu",
	360:  "Asia/Dhaka",
	390:  "Asia/Yangon",
	420:  "Asia/Bangkok",
	480:  "Asia/Singapore",
	540:  "Asia/Tokyo",
	570:  "Australia/Adelaide",
	600:  "Australia/Sydney",
	660:  "Pacific/Noumea",
	720:  "Pacific/Auckland",
	780:  "Pacific/Tongatapu",
}

var gmtOffsetPattern = regexp.MustCompile(`(?i)\b(?:GMT|UTC)\s*(?:([+-])\s*(\d{1,2})(?::?(\d{2}))?)?`)

// parseGMTOffset extracts minutes east of UTC from labels like "(GMT-05:00) Eastern Time".
func parseGMTOffset(label string) (int, bool) {
	m := gmtOffsetPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	if m[1] == "" {
		return 0, true
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	total := hours*60 + minutes
	if m[1] == "-" {
		total = -total
	}
	return total, true
}

// zoneForOffsetLabel maps a settings label onto an IANA zone, falling back to
// DefaultSourceZone for unknown offsets.
func zoneForOffsetLabel(label string) (*time.Location, bool) {
	if offset, ok := parseGMTOffset(label); ok {
		if name, known := offsetZones[offset]; known {
			if loc, err := time.LoadLocation(name); err == nil {
				return loc, true
			}
		}
	}
	return mustLoadLocation(DefaultSourceZone), false
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// sameDay reports whether t falls on day's calendar date in loc.
func sameDay(t time.Time, day time.Time, loc *time.Location) bool {
	a := t.In(loc)
	b := day.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// selectDay keeps events on day's calendar date in loc. Events without an
// instant are matched on their source-local date.
func selectDay(events []models.CalendarEvent, day time.Time, loc *time.Location) []models.CalendarEvent {
	if loc == nil {
		loc = time.UTC
	}
	date := day.In(loc).Format(dateLayout)
	out := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		switch {
		case ev.TimeISO != nil:
			if sameDay(*ev.TimeISO, day, loc) {
				out = append(out, ev)
			}
		case ev.Date == date:
			out = append(out, ev)
		}
	}
	return out
}

const dateLayout = "2006-01-02"
