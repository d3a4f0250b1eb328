package api

import (
	"log/slog"
	"net/http"

	"github.com/STRATINT/econcal/internal/auth"
	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/metrics"
	"github.com/STRATINT/econcal/internal/subscribers"
)

// RouterDeps collects what the HTTP surface serves.
type RouterDeps struct {
	Runner      Runner
	Subscribers subscribers.Store
	Sources     SourceLister
	Issues      issuelog.Reader
	Auth        auth.Config
	Metrics     *metrics.HTTPCollector
	Logger      *slog.Logger
}

// NewRouter builds the service mux. The issue log API is only mounted when
// auth is configured.
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	handler := NewHandler(d.Runner, d.Subscribers, d.Sources, d.Logger)
	mux.HandleFunc("/api/events", handler.GetEventsHandler)
	mux.HandleFunc("/api/sources", handler.GetSourcesHandler)

	if d.Auth.Enabled() && d.Issues != nil {
		authHandler := NewAuthHandler(d.Auth, d.Logger)
		issueHandler := NewIssueHandler(d.Issues, d.Logger)
		authMiddleware := auth.AuthMiddleware(d.Auth)

		mux.HandleFunc("/api/auth/token", authHandler.Token)
		mux.Handle("/api/issues", authMiddleware(http.HandlerFunc(issueHandler.ListIssues)))
	} else {
		d.Logger.Warn("admin auth not configured, issue log API disabled")
	}

	if d.Metrics == nil {
		return mux
	}
	mux.Handle("/metrics", d.Metrics.Handler())
	return d.Metrics.InstrumentHandler(mux)
}
