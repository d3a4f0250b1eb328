package ingestion

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/STRATINT/econcal/internal/config"
)

// Sources holds the adapter behind each subscriber source family. A family is
// nil when every adapter serving it is disabled.
type Sources struct {
	ForexFactory Adapter
	Myfxbook     Adapter
}

// NewSources builds the adapters enabled in cfg. The ForexFactory family reads
// the rendered page through pool and falls back to the CSV export; without a
// pool only the export serves it.
func NewSources(cfg config.SourcesConfig, pool BrowserPool, client *http.Client, deps Deps) (Sources, error) {
	var (
		out       Sources
		page, csv Adapter
	)

	if cfg.ForexFactory.Enabled && pool != nil {
		a, err := NewForexFactoryAdapter(pool, cfg.ForexFactory.URL, cfg.ForexFactory.CacheTTL, deps)
		if err != nil {
			return Sources{}, fmt.Errorf("forexfactory adapter: %w", err)
		}
		page = a
	}
	if cfg.CSVExport.Enabled {
		a, err := NewCSVExportAdapter(client, cfg.CSVExport.URL, cfg.CSVExport.TimeZone, cfg.HTTPTimeout, cfg.UserAgent, cfg.CSVExport.CacheTTL, deps)
		if err != nil {
			return Sources{}, fmt.Errorf("csv export adapter: %w", err)
		}
		csv = a
	}
	switch {
	case page != nil && csv != nil:
		out.ForexFactory = NewFallbackAdapter(page, csv)
	case page != nil:
		out.ForexFactory = page
	case csv != nil:
		out.ForexFactory = csv
	}

	if cfg.Myfxbook.Enabled {
		out.Myfxbook = NewMyfxbookAdapter(client, cfg.Myfxbook.URL, cfg.HTTPTimeout, cfg.UserAgent, cfg.Myfxbook.CacheTTL, deps)
	}
	return out, nil
}

// All returns every configured family adapter.
func (s Sources) All() []Adapter {
	var out []Adapter
	for _, a := range []Adapter{s.ForexFactory, s.Myfxbook} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Close closes every adapter.
func (s Sources) Close() error {
	var errs []error
	for _, a := range s.All() {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
