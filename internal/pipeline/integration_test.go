package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/config"
	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/quality"
)

const integrationFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<item>
  <title>USD Nonfarm Payrolls</title>
  <pubDate>Fri, 17 Oct 2025 12:30:00 GMT</pubDate>
  <description><![CDATA[<table><tr><th>Impact</th><th>Previous</th><th>Consensus</th><th>Actual</th></tr><tr><td>High</td><td>22K</td><td>50K</td><td></td></tr></table>]]></description>
</item>
<item>
  <title>EUR CPI y/y</title>
  <pubDate>Fri, 17 Oct 2025 09:00:00 GMT</pubDate>
  <description><![CDATA[<table><tr><th>Impact</th><th>Previous</th><th>Consensus</th></tr><tr><td>High</td><td>2.0%</td><td>2.2%</td></tr></table>]]></description>
</item>
</channel>
</rss>`

const integrationCSV = `Title,Country,Date,Time,Impact,Forecast,Previous,URL
Nonfarm Payrolls,USD,10-17-2025,9:00am,High,50K,22K,
Retail Sales m/m,USD,10-17-2025,10:00am,Medium,0.4%,0.6%,
Trade Balance,USD,10-17-2025,10:00am,Low,-60B,-59B,
GDP q/q,JPY,10-17-2025,7:50pm,High,0.2%,0.3%,
`

func serveBody(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestEndToEnd drives both source families through the quality gate,
// aggregation, conflict detection and delivery filtering.
func TestEndToEnd(t *testing.T) {
	feed := serveBody(t, integrationFeed)
	csv := serveBody(t, integrationCSV)
	clock := func() time.Time { return now }

	cfg := config.SourcesConfig{
		HTTPTimeout: 5 * time.Second,
		UserAgent:   "econcal-test",
		Myfxbook:    config.SourceConfig{Enabled: true, URL: feed.URL, CacheTTL: time.Minute},
		CSVExport:   config.SourceConfig{Enabled: true, URL: csv.URL, CacheTTL: time.Minute, TimeZone: "America/New_York"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := issuelog.NewMemorySink(100)

	sources, err := ingestion.NewSources(cfg, nil, http.DefaultClient, ingestion.Deps{
		Logger: logger,
		Issues: sink,
		Gate:   quality.NewGate(quality.WithClock(clock)),
		Retry:  ingestion.RetryPolicy{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
		Now:    clock,
	})
	if err != nil {
		t.Fatalf("NewSources returned error: %v", err)
	}
	defer sources.Close()

	agg := aggregator.New(sources.ForexFactory, sources.Myfxbook, logger)
	svc := NewService(agg, sink, logger, WithClock(clock))

	res, err := svc.Run(context.Background(), Request{
		Subscriber: models.Subscriber{ID: "usd-desk", Currencies: []string{"USD"}, Preference: models.PreferenceBoth},
		Day:        aggregator.DayToday,
		Mode:       delivery.ModeGeneral,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Deliver) != 3 {
		t.Fatalf("expected 3 delivered USD events, got %d: %+v", len(res.Deliver), res.Deliver)
	}
	wantOrder := []struct {
		title  string
		source models.SourceName
	}{
		{"Nonfarm Payrolls", models.SourceMyfxbook},
		{"Nonfarm Payrolls", models.SourceForexFactoryCSV},
		{"Retail Sales m/m", models.SourceForexFactoryCSV},
	}
	for i, want := range wantOrder {
		got := res.Deliver[i]
		if got.Title != want.title || got.Source != want.source {
			t.Errorf("event %d: expected %s from %s, got %s from %s", i, want.title, want.source, got.Title, got.Source)
		}
	}

	if len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict for the 30 minute payrolls mismatch, got %+v", res.Conflicts)
	}
	if res.Conflicts[0].Source != models.SourceMerge {
		t.Errorf("conflicts belong to the merge stage, got %s", res.Conflicts[0].Source)
	}

	counts, _ := sink.CountByType(context.Background())
	if counts[models.IssueCrossSourceConflict] != 1 {
		t.Errorf("expected the conflict in the issue log, got %v", counts)
	}

	t.Run("single family preference", func(t *testing.T) {
		res, err := svc.Run(context.Background(), Request{
			Subscriber: models.Subscriber{ID: "mfb", Currencies: []string{"USD"}, Preference: models.PreferenceMyfxbook},
			Day:        aggregator.DayToday,
		})
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if len(res.Deliver) != 1 || res.Deliver[0].Source != models.SourceMyfxbook {
			t.Errorf("expected only the Myfxbook payrolls release, got %+v", res.Deliver)
		}
		if len(res.Conflicts) != 0 {
			t.Errorf("one family cannot conflict with itself, got %+v", res.Conflicts)
		}
	})
}
