// Command calendarctl runs one pipeline pass and prints the delivery decision
// as JSON on stdout. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/browser"
	"github.com/STRATINT/econcal/internal/config"
	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/logging"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/pipeline"
	"github.com/STRATINT/econcal/internal/quality"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "calendarctl:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		currencies   = flag.String("currencies", "", "comma-separated currency codes, empty for all")
		source       = flag.String("source", "both", "source preference: forexfactory, myfxbook or both")
		day          = flag.String("day", "today", "today, tomorrow or all")
		mode         = flag.String("mode", "general", "reminder, ai_forecast, ai_results or general")
		tz           = flag.String("tz", "UTC", "display time zone")
		forScheduler = flag.Bool("scheduler", false, "apply scheduler staleness rules")
		noBrowser    = flag.Bool("no-browser", false, "skip the rendered calendar and read the CSV export instead")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}

	pref, err := models.ParseSourcePreference(*source)
	if err != nil {
		return err
	}
	d, err := aggregator.ParseDay(*day)
	if err != nil {
		return err
	}
	m, err := delivery.ParseMode(*mode)
	if err != nil {
		return err
	}
	sub := models.Subscriber{ID: "cli", Preference: pref, TimeZone: *tz}
	for _, c := range strings.Split(*currencies, ",") {
		if c = strings.TrimSpace(c); c != "" {
			sub.Currencies = append(sub.Currencies, strings.ToUpper(c))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issues := issuelog.NewLoggerSink(logging.Component(logger, "issuelog"))

	var pool ingestion.BrowserPool
	if !*noBrowser {
		coordinator := browser.NewCoordinator(browser.ChromeLauncher{
			ExecPath:          cfg.Browser.ExecPath,
			Headless:          cfg.Browser.Headless,
			UserAgent:         cfg.Sources.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
		}, browser.Options{
			IdleTimeout:    cfg.Browser.IdleTimeout,
			CheckInterval:  cfg.Browser.CheckInterval,
			StartupTimeout: cfg.Browser.StartupTimeout,
			Logger:         logging.Component(logger, "browser"),
		})
		defer coordinator.Close()
		pool = coordinator
	}

	sources, err := ingestion.NewSources(cfg.Sources, pool, &http.Client{Timeout: cfg.Sources.HTTPTimeout}, ingestion.Deps{
		Logger: logger,
		Issues: issues,
		Gate:   quality.NewGate(),
		Retry:  ingestion.DefaultRetryPolicy(),
	})
	if err != nil {
		return err
	}
	defer sources.Close()

	service := pipeline.NewService(aggregator.New(sources.ForexFactory, sources.Myfxbook, logger), issues, logger)
	res, err := service.Run(ctx, pipeline.Request{
		Subscriber:   sub,
		Day:          d,
		Mode:         m,
		ForScheduler: *forScheduler,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
