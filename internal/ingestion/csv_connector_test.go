package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

const csvExport = `Title,Country,Date,Time,Impact,Forecast,Previous,URL
Core CPI m/m,USD,10-17-2025,8:30am,High,0.3%,0.3%,https://www.forexfactory.com/calendar/1
CPI m/m,USD,10-17-2025,,High,0.2%,0.4%,https://www.forexfactory.com/calendar/2
Bank Holiday,JPY,10-17-2025,All Day,Holiday,,,https://www.forexfactory.com/calendar/3
Trade Balance,AUD,10-17-2025,,Low,1.2B,1.1B,https://www.forexfactory.com/calendar/4
German ZEW Economic Sentiment,EUR,10-18-2025,5:00am,Medium,10.0,12.1,https://www.forexfactory.com/calendar/5
Broken Row,USD,2025/10/18,1:00pm,High,1,1,
`

func TestParseCSVExport(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	events, err := parseCSVExport([]byte(csvExport), ny, testLogger())
	if err != nil {
		t.Fatalf("parseCSVExport returned error: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 parsed rows (bad date skipped), got %d", len(events))
	}

	carried := events[1]
	if carried.Time != "8:30am" || carried.TimeISO == nil || !carried.TimeISO.Equal(time.Date(2025, 10, 17, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("expected carried 8:30am, got %q %v", carried.Time, carried.TimeISO)
	}
	if events[2].TimeISO != nil {
		t.Error("All Day row must not get an instant")
	}
	if events[3].TimeISO != nil {
		t.Error("carry must reset after a special time string")
	}
	if events[4].Date != "2025-10-18" || events[4].TimeISO == nil || events[4].TimeISO.Hour() != 9 {
		t.Errorf("unexpected conversion for next-day row: %+v", events[4])
	}
	for _, ev := range events {
		if ev.Source != models.SourceForexFactoryCSV {
			t.Errorf("unexpected source %s", ev.Source)
		}
	}
}

func TestParseCSVExport_ReorderedAndMissingOptionalColumns(t *testing.T) {
	doc := "\ufeffcountry,impact,title,date,time\nUSD,High,Fed Chair Powell Speaks,10-17-2025,1:00pm\n"
	events, err := parseCSVExport([]byte(doc), time.UTC, testLogger())
	if err != nil {
		t.Fatalf("parseCSVExport returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Title != "Fed Chair Powell Speaks" || ev.Currency != "USD" || ev.Impact != models.ImpactHigh {
		t.Errorf("columns misread: %+v", ev)
	}
	if ev.Forecast != models.EmptyValue || ev.Previous != models.EmptyValue {
		t.Errorf("missing optional columns should normalize to the empty marker: %+v", ev)
	}
}

func TestParseCSVExport_MissingRequiredColumn(t *testing.T) {
	_, err := parseCSVExport([]byte("Title,Country,Time\nCPI,USD,8:30am\n"), time.UTC, testLogger())
	if !errors.Is(err, ErrStructure) {
		t.Fatalf("expected ErrStructure, got %v", err)
	}
}

func TestCSVExportAdapter_Events(t *testing.T) {
	srv := newFeedServer(t, csvExport)
	a, err := NewCSVExportAdapter(srv.Client(), srv.URL, "America/New_York", 5*time.Second, "", time.Hour, testDeps(newTestClock(), nil))
	if err != nil {
		t.Fatalf("NewCSVExportAdapter returned error: %v", err)
	}

	events := a.Events(context.Background())
	if len(events) != 3 {
		t.Fatalf("expected 3 retained events, got %d: %+v", len(events), events)
	}
	for _, ev := range events {
		if !ev.Impact.Retained() {
			t.Errorf("low or unknown impact leaked: %+v", ev)
		}
	}
}

func TestNewCSVExportAdapter_InvalidZone(t *testing.T) {
	if _, err := NewCSVExportAdapter(nil, "", "Mars/Olympus", 0, "", time.Hour, Deps{}); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
