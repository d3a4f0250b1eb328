package ingestion

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultMyfxbookURL is the economic calendar RSS feed.
const DefaultMyfxbookURL = "https://www.myfxbook.com/rss/forex-economic-calendar-events"

// MyfxbookAdapter reads the Myfxbook calendar feed. Each item's pubDate is the
// release instant and its description embeds a one-row table of figures.
type MyfxbookAdapter struct {
	*baseAdapter
	http    *httpFetcher
	feedURL string
}

// NewMyfxbookAdapter creates the adapter. A nil client gets one with timeout.
func NewMyfxbookAdapter(client *http.Client, feedURL string, timeout time.Duration, userAgent string, ttl time.Duration, deps Deps) *MyfxbookAdapter {
	if feedURL == "" {
		feedURL = DefaultMyfxbookURL
	}
	a := &MyfxbookAdapter{
		http:    newHTTPFetcher(client, timeout, userAgent),
		feedURL: feedURL,
	}
	a.baseAdapter = newBaseAdapter(models.SourceMyfxbook, ttl, deps, a.window)
	return a
}

func (a *MyfxbookAdapter) window(time.Time) (string, fetchFunc) {
	return a.feedURL, func(ctx context.Context) ([]models.CalendarEvent, error) {
		body, err := a.http.get(ctx, a.feedURL)
		if err != nil {
			return nil, err
		}
		return parseMyfxbookFeed(body, a.deps.Logger)
	}
}

type rssFeed struct {
	XMLName xml.Name    `xml:"rss"`
	Channel *rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Category    string `xml:"category"`
}

func parseMyfxbookFeed(body []byte, logger *slog.Logger) ([]models.CalendarEvent, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, structureError("decode rss: %v", err)
	}
	if feed.Channel == nil {
		return nil, structureError("rss channel missing")
	}

	events := make([]models.CalendarEvent, 0, len(feed.Channel.Items))
	for i, item := range feed.Channel.Items {
		currency, title := splitCurrency(item.Category, item.Title)
		if title == "" {
			logger.Warn("skipping feed item without title", "source", models.SourceMyfxbook, "item", i)
			continue
		}

		cells := parseDescriptionTable(item.Description)
		forecast := cells["consensus"]
		if forecast == "" {
			forecast = cells["forecast"]
		}

		fields := models.EventFields{
			Title:    title,
			Currency: currency,
			Impact:   models.ParseImpact(cells["impact"]),
			Forecast: forecast,
			Previous: cells["previous"],
			Actual:   cells["actual"],
			Source:   models.SourceMyfxbook,
		}
		if pub, ok := parsePubDate(item.PubDate); ok {
			utc := pub.UTC()
			fields.TimeISO = &utc
			fields.Time = utc.Format("15:04")
			fields.Date = utc.Format(dateLayout)
		} else {
			logger.Debug("feed item has no usable pubDate", "source", models.SourceMyfxbook, "title", title, "pub_date", item.PubDate)
		}

		events = append(events, models.NewCalendarEvent(fields))
	}
	return events, nil
}

var leadingCurrency = regexp.MustCompile(`^([A-Z]{3})\b[\s:\-]*`)

var currencyCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "AUD": true, "NZD": true,
	"CAD": true, "CHF": true, "CNY": true, "HKD": true, "SGD": true, "SEK": true,
	"NOK": true, "DKK": true, "ZAR": true, "MXN": true, "BRL": true, "INR": true,
	"KRW": true, "TRY": true, "PLN": true, "RUB": true, "CZK": true, "HUF": true,
}

// splitCurrency prefers a three-letter category and otherwise strips a leading
// currency code from the title.
func splitCurrency(category, title string) (string, string) {
	title = models.CollapseWhitespace(title)
	cat := strings.ToUpper(strings.TrimSpace(category))
	if m := leadingCurrency.FindStringSubmatch(title); m != nil && currencyCodes[m[1]] {
		if len(cat) != 3 || cat == m[1] {
			return m[1], strings.TrimSpace(title[len(m[0]):])
		}
	}
	if len(cat) == 3 {
		return cat, title
	}
	return "", title
}

// parseDescriptionTable maps header names to values from the embedded table,
// tolerating reordered or missing columns.
func parseDescriptionTable(desc string) map[string]string {
	out := map[string]string{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return out
	}
	rows := doc.Find("tr")
	if rows.Length() < 2 {
		return out
	}

	var headers []string
	rows.First().Find("th, td").Each(func(_ int, c *goquery.Selection) {
		headers = append(headers, strings.ToLower(models.CollapseWhitespace(c.Text())))
	})
	rows.Eq(1).Find("td, th").Each(func(i int, c *goquery.Selection) {
		if i < len(headers) && headers[i] != "" {
			out[headers[i]] = models.CollapseWhitespace(c.Text())
		}
	})
	return out
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// parsePubDate reads RSS and Atom date formats. Unlike article feeds, a
// missing date is not replaced with now: the date is the release instant.
func parsePubDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, models.ValidInstant(t)
		}
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.UTC); err == nil {
		return t, models.ValidInstant(t)
	}
	return time.Time{}, false
}

