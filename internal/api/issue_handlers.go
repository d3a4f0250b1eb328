package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/models"
)

// IssueHandler serves the issue log.
type IssueHandler struct {
	reader issuelog.Reader
	logger *slog.Logger
}

func NewIssueHandler(reader issuelog.Reader, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{reader: reader, logger: logger}
}

// IssuesResponse is the body of GET /api/issues.
type IssuesResponse struct {
	Issues []models.DataIssue       `json:"issues"`
	Count  int                      `json:"count"`
	ByType map[models.IssueType]int `json:"by_type"`
}

// ListIssues handles GET /api/issues
func (h *IssueHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query, err := parseIssueQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	issues, err := h.reader.List(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to list issues", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	counts, err := h.reader.CountByType(r.Context())
	if err != nil {
		h.logger.Error("failed to count issues", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if issues == nil {
		issues = []models.DataIssue{}
	}

	writeJSON(w, http.StatusOK, IssuesResponse{Issues: issues, Count: len(issues), ByType: counts}, h.logger)
}

func parseIssueQuery(r *http.Request) (models.IssueQuery, error) {
	q := r.URL.Query()
	query := models.IssueQuery{
		Source: models.SourceName(q.Get("source")),
		Type:   models.IssueType(q.Get("type")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return query, fmt.Errorf("invalid limit %q", raw)
		}
		query.Limit = limit
	}
	if err := query.Validate(); err != nil {
		return query, err
	}
	return query, nil
}
