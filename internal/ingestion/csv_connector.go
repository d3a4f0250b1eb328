package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultCSVExportURL is the weekly ForexFactory CSV export.
const DefaultCSVExportURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.csv"

const csvDateLayout = "01-02-2006"

var requiredCSVColumns = []string{"title", "country", "date"}

// CSVExportAdapter reads the batch-published weekly CSV export. Times are
// printed in a fixed zone.
type CSVExportAdapter struct {
	*baseAdapter
	http      *httpFetcher
	exportURL string
	loc       *time.Location
}

// NewCSVExportAdapter creates the adapter. zone names the export's fixed IANA zone.
func NewCSVExportAdapter(client *http.Client, exportURL, zone string, timeout time.Duration, userAgent string, ttl time.Duration, deps Deps) (*CSVExportAdapter, error) {
	if exportURL == "" {
		exportURL = DefaultCSVExportURL
	}
	if zone == "" {
		zone = DefaultSourceZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load csv export zone %q: %w", zone, err)
	}

	a := &CSVExportAdapter{
		http:      newHTTPFetcher(client, timeout, userAgent),
		exportURL: exportURL,
		loc:       loc,
	}
	a.baseAdapter = newBaseAdapter(models.SourceForexFactoryCSV, ttl, deps, a.window)
	return a, nil
}

func (a *CSVExportAdapter) window(time.Time) (string, fetchFunc) {
	return a.exportURL, func(ctx context.Context) ([]models.CalendarEvent, error) {
		body, err := a.http.get(ctx, a.exportURL)
		if err != nil {
			return nil, err
		}
		return parseCSVExport(body, a.loc, a.deps.Logger)
	}
}

// parseCSVExport reads the export by header name. Optional columns may be
// missing or reordered; missing title, country or date columns are fatal.
func parseCSVExport(body []byte, loc *time.Location, logger *slog.Logger) ([]models.CalendarEvent, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, structureError("read csv header: %v", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredCSVColumns {
		if _, ok := columns[name]; !ok {
			return nil, structureError("csv column %q missing", name)
		}
	}

	get := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var (
		events  []models.CalendarEvent
		carrier timeCarrier
		lastDay string
		line    = 1
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			logger.Warn("skipping malformed csv line", "source", models.SourceForexFactoryCSV, "line", line, "error", err)
			continue
		}

		rawDate := strings.TrimSpace(get(record, "date"))
		day, err := time.Parse(csvDateLayout, rawDate)
		if err != nil {
			logger.Warn("skipping csv row with unparseable date", "source", models.SourceForexFactoryCSV, "line", line, "date", rawDate)
			continue
		}
		if rawDate != lastDay {
			carrier.reset()
			lastDay = rawDate
		}

		display, concrete := carrier.resolve(get(record, "time"))
		var ts *time.Time
		if concrete {
			ts = instantIn(day, display, loc)
		}

		events = append(events, models.NewCalendarEvent(models.EventFields{
			Title:    get(record, "title"),
			Currency: get(record, "country"),
			Impact:   models.ParseImpact(get(record, "impact")),
			Time:     display,
			TimeISO:  ts,
			Date:     day.Format(dateLayout),
			Forecast: get(record, "forecast"),
			Previous: get(record, "previous"),
			Actual:   get(record, "actual"),
			Source:   models.SourceForexFactoryCSV,
		}))
	}
	return events, nil
}
