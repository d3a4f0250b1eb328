package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/econcal/internal/browser"
	"github.com/STRATINT/econcal/internal/models"
)

const (
	// DefaultForexFactoryURL is the browser-rendered calendar page.
	DefaultForexFactoryURL = "https://www.forexfactory.com/calendar"

	calendarTableSelector = "table.calendar__table"
	zoneCacheTTL          = 6 * time.Hour
	zoneCacheKey          = "display-zone"
)

// BrowserPool runs renders against the shared browser one at a time.
type BrowserPool interface {
	Do(ctx context.Context, fn func(ctx context.Context, b browser.Browser) error) error
}

// ForexFactoryAdapter scrapes the rendered ForexFactory calendar. Its display
// zone follows the site's session setting, read from the timezone page.
type ForexFactoryAdapter struct {
	*baseAdapter
	pool        BrowserPool
	calendarURL string
	timezoneURL string
	zones       *TTLCache[*time.Location]
}

// NewForexFactoryAdapter creates the adapter. An empty pageURL uses DefaultForexFactoryURL.
func NewForexFactoryAdapter(pool BrowserPool, pageURL string, ttl time.Duration, deps Deps) (*ForexFactoryAdapter, error) {
	if pageURL == "" {
		pageURL = DefaultForexFactoryURL
	}
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid forexfactory url %q", pageURL)
	}
	tzURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/timezone"}

	a := &ForexFactoryAdapter{
		pool:        pool,
		calendarURL: pageURL,
		timezoneURL: tzURL.String(),
	}
	a.baseAdapter = newBaseAdapter(models.SourceForexFactory, ttl, deps, a.window)
	a.zones = NewTTLCache[*time.Location](zoneCacheTTL, a.deps.Now)
	return a, nil
}

// dayURL addresses the single-day calendar view, e.g. ?day=oct17.2025.
func (a *ForexFactoryAdapter) dayURL(day time.Time) string {
	sep := "?"
	if strings.Contains(a.calendarURL, "?") {
		sep = "&"
	}
	return a.calendarURL + sep + "day=" + strings.ToLower(day.Format("Jan2.2006"))
}

func (a *ForexFactoryAdapter) window(day time.Time) (string, fetchFunc) {
	pageURL := a.dayURL(day)
	return pageURL, func(ctx context.Context) ([]models.CalendarEvent, error) {
		var (
			page string
			loc  *time.Location
		)
		err := a.pool.Do(ctx, func(ctx context.Context, b browser.Browser) error {
			loc = a.displayZone(ctx, b)
			html, err := b.Render(ctx, pageURL, calendarTableSelector)
			page = html
			return err
		})
		if err != nil {
			return nil, err
		}
		return parseForexFactoryPage(page, loc, a.deps.Now(), a.deps.Logger)
	}
}

// displayZone returns the cached session zone, detecting it when stale.
// Detection failures fall back to DefaultSourceZone without caching.
func (a *ForexFactoryAdapter) displayZone(ctx context.Context, b browser.Browser) *time.Location {
	if loc, ok := a.zones.Get(zoneCacheKey); ok {
		return loc
	}

	html, err := b.Render(ctx, a.timezoneURL, "select")
	if err != nil {
		a.deps.Logger.Warn("timezone detection failed, assuming default zone",
			"source", a.name, "default", DefaultSourceZone, "error", err)
		return mustLoadLocation(DefaultSourceZone)
	}

	loc, known := parseTimezoneSetting(html)
	if !known {
		a.deps.Logger.Warn("unrecognized timezone setting, assuming default zone",
			"source", a.name, "default", DefaultSourceZone)
	}
	a.zones.Set(zoneCacheKey, loc)
	return loc
}

// parseTimezoneSetting reads the selected "(GMT±hh:mm) ..." option.
func parseTimezoneSetting(html string) (*time.Location, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return mustLoadLocation(DefaultSourceZone), false
	}

	label := ""
	doc.Find("select option[selected]").EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		text := opt.Text()
		if strings.Contains(strings.ToUpper(text), "GMT") || strings.Contains(strings.ToUpper(text), "UTC") {
			label = text
			return false
		}
		return true
	})
	if label == "" {
		return mustLoadLocation(DefaultSourceZone), false
	}
	return zoneForOffsetLabel(label)
}

var ffDatePattern = regexp.MustCompile(`(?i)(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*(\d{1,2})`)

// parseForexFactoryDate reads a yearless date cell such as "FriOct 17".
func parseForexFactoryDate(cell string, ref time.Time) (time.Time, bool) {
	m := ffDatePattern.FindStringSubmatch(cell)
	if m == nil {
		return time.Time{}, false
	}
	month, err := time.Parse("Jan", strings.ToUpper(m[1][:1])+strings.ToLower(m[1][1:]))
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := inferYear(month.Month(), ref)
	return time.Date(year, month.Month(), day, 0, 0, 0, 0, time.UTC), true
}

// parseForexFactoryPage extracts calendar rows. Date cells appear only on the
// first row of each day; time cells only on the first row of each release group.
func parseForexFactoryPage(html string, loc *time.Location, now time.Time, logger *slog.Logger) ([]models.CalendarEvent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}
	table := doc.Find(calendarTableSelector)
	if table.Length() == 0 {
		return nil, structureError("calendar table not found")
	}
	if loc == nil {
		loc = mustLoadLocation(DefaultSourceZone)
	}

	var (
		events   []models.CalendarEvent
		carrier  timeCarrier
		current  time.Time
		haveDate bool
		skipped  int
	)
	ref := now.In(loc)

	table.Find("tr.calendar__row").Each(func(i int, row *goquery.Selection) {
		if dateText := cellText(row, "td.calendar__date"); dateText != "" {
			d, ok := parseForexFactoryDate(dateText, ref)
			if !ok {
				haveDate = false
				skipped++
				logger.Warn("skipping row with unparseable date", "source", models.SourceForexFactory, "row", i, "date", dateText)
				return
			}
			if !haveDate || !d.Equal(current) {
				carrier.reset()
			}
			current, haveDate = d, true
		}

		title := cellText(row, ".calendar__event-title")
		currency := cellText(row, "td.calendar__currency")
		if title == "" && currency == "" {
			return
		}
		if !haveDate {
			skipped++
			logger.Warn("skipping row without a date", "source", models.SourceForexFactory, "row", i, "title", title)
			return
		}

		display, concrete := carrier.resolve(cellText(row, "td.calendar__time"))
		var ts *time.Time
		if concrete {
			ts = instantIn(current, display, loc)
		}

		events = append(events, models.NewCalendarEvent(models.EventFields{
			Title:    title,
			Currency: currency,
			Impact:   forexFactoryImpact(row.Find("td.calendar__impact")),
			Time:     display,
			TimeISO:  ts,
			Date:     current.Format(dateLayout),
			Forecast: cellText(row, "td.calendar__forecast"),
			Previous: cellText(row, "td.calendar__previous"),
			Actual:   cellText(row, "td.calendar__actual"),
			Source:   models.SourceForexFactory,
		}))
	})

	if skipped > 0 {
		logger.Info("forexfactory rows skipped", "count", skipped)
	}
	return events, nil
}

// forexFactoryImpact reads the impact icon: red, orange or yellow.
func forexFactoryImpact(cell *goquery.Selection) models.Impact {
	icon := cell.Find("span").First()
	class, _ := icon.Attr("class")
	switch {
	case strings.Contains(class, "-red"):
		return models.ImpactHigh
	case strings.Contains(class, "-ora"):
		return models.ImpactMedium
	case strings.Contains(class, "-yel"):
		return models.ImpactLow
	}
	if title, ok := icon.Attr("title"); ok {
		if fields := strings.Fields(title); len(fields) > 0 {
			return models.ParseImpact(fields[0])
		}
	}
	return ""
}

func cellText(row *goquery.Selection, selector string) string {
	return models.CollapseWhitespace(row.Find(selector).First().Text())
}
