package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/pipeline"
	"github.com/STRATINT/econcal/internal/subscribers"
)

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// SourceLister exposes the configured adapters for status reporting.
type SourceLister interface {
	Adapters() []ingestion.Adapter
}

type Handler struct {
	runner  Runner
	subs    subscribers.Store
	sources SourceLister
	logger  *slog.Logger
}

// NewHandler creates the events handler. subs and sources may be nil.
func NewHandler(runner Runner, subs subscribers.Store, sources SourceLister, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, subs: subs, sources: sources, logger: logger}
}

// EventsResponse is the body of GET /api/events.
type EventsResponse struct {
	Subscriber   string                 `json:"subscriber,omitempty"`
	Day          aggregator.Day         `json:"day"`
	Mode         delivery.Mode          `json:"mode"`
	TimeZone     string                 `json:"timezone"`
	Count        int                    `json:"count"`
	Deliver      []models.CalendarEvent `json:"deliver"`
	Skipped      []models.SkippedEvent  `json:"skipped"`
	Conflicts    []models.DataIssue     `json:"conflicts"`
	GeneratedAt  time.Time              `json:"generated_at"`
	ForScheduler bool                   `json:"for_scheduler"`
}

// GetEventsHandler handles GET /api/events
func (h *Handler) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.parseEventsRequest(r)
	if err != nil {
		var notFound *subscriberNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to run pipeline", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, EventsResponse{
		Subscriber:   req.Subscriber.ID,
		Day:          req.Day,
		Mode:         req.Mode,
		TimeZone:     req.Subscriber.Location().String(),
		Count:        len(res.Deliver),
		Deliver:      res.Deliver,
		Skipped:      res.Skipped,
		Conflicts:    res.Conflicts,
		GeneratedAt:  time.Now().UTC(),
		ForScheduler: req.ForScheduler,
	}, h.logger)
}

type subscriberNotFound struct {
	id string
}

func (e *subscriberNotFound) Error() string {
	return fmt.Sprintf("subscriber %q not found", e.id)
}

// parseEventsRequest reads either a stored subscriber (subscriber=id) or an
// ad hoc one (currencies, source, tz).
func (h *Handler) parseEventsRequest(r *http.Request) (pipeline.Request, error) {
	q := r.URL.Query()

	day, err := aggregator.ParseDay(q.Get("day"))
	if err != nil {
		return pipeline.Request{}, err
	}
	mode, err := delivery.ParseMode(q.Get("mode"))
	if err != nil {
		return pipeline.Request{}, err
	}
	forScheduler := false
	if raw := q.Get("scheduler"); raw != "" {
		if forScheduler, err = strconv.ParseBool(raw); err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid scheduler flag %q", raw)
		}
	}

	var sub models.Subscriber
	if id := q.Get("subscriber"); id != "" {
		if h.subs == nil {
			return pipeline.Request{}, &subscriberNotFound{id: id}
		}
		sub, err = h.subs.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, subscribers.ErrNotFound) {
				return pipeline.Request{}, &subscriberNotFound{id: id}
			}
			return pipeline.Request{}, err
		}
	} else {
		pref, err := models.ParseSourcePreference(q.Get("source"))
		if err != nil {
			return pipeline.Request{}, err
		}
		sub = models.Subscriber{Preference: pref, Currencies: splitList(q.Get("currencies"))}
	}

	if tz := q.Get("tz"); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid tz %q", tz)
		}
		sub.TimeZone = tz
	}

	return pipeline.Request{Subscriber: sub, Day: day, Mode: mode, ForScheduler: forScheduler}, nil
}

// GetSourcesHandler handles GET /api/sources
func (h *Handler) GetSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	statuses := []ingestion.AdapterStatus{}
	if h.sources != nil {
		for _, a := range h.sources.Adapters() {
			statuses = append(statuses, a.Status())
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": statuses,
		"count":   len(statuses),
	}, h.logger)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
