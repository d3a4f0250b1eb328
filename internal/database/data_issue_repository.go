package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/econcal/internal/models"
)

// PostgresIssueRepository stores data quality issues in the data_issues table.
// Rows are only ever inserted or purged, never updated.
type PostgresIssueRepository struct {
	db *sql.DB
}

// NewPostgresIssueRepository creates a new PostgreSQL-based issue repository.
func NewPostgresIssueRepository(db *sql.DB) *PostgresIssueRepository {
	return &PostgresIssueRepository{db: db}
}

// Store appends an issue.
func (r *PostgresIssueRepository) Store(ctx context.Context, issue models.DataIssue) error {
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}

	details, err := marshalDetails(issue.Details)
	if err != nil {
		return fmt.Errorf("failed to encode issue details: %w", err)
	}

	query := `
		INSERT INTO data_issues (id, event_id, source, issue_type, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query,
		issue.ID,
		nullString(issue.EventID),
		string(issue.Source),
		string(issue.Type),
		issue.Message,
		details,
		issue.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert data issue: %w", err)
	}
	return nil
}

// List returns matching issues newest first.
func (r *PostgresIssueRepository) List(ctx context.Context, q models.IssueQuery) ([]models.DataIssue, error) {
	query, args := buildIssueListQuery(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data issues: %w", err)
	}
	defer rows.Close()

	issues := []models.DataIssue{}
	for rows.Next() {
		var (
			issue   models.DataIssue
			eventID sql.NullString
			details sql.NullString
			source  string
			kind    string
		)
		if err := rows.Scan(&issue.ID, &eventID, &source, &kind, &issue.Message, &details, &issue.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data issue: %w", err)
		}
		issue.Source = models.SourceName(source)
		issue.Type = models.IssueType(kind)
		if eventID.Valid {
			issue.EventID = eventID.String
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &issue.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details for issue %s: %w", issue.ID, err)
			}
		}
		issues = append(issues, issue)
	}

	return issues, rows.Err()
}

// CountByType counts stored issues per type.
func (r *PostgresIssueRepository) CountByType(ctx context.Context) (map[models.IssueType]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT issue_type, COUNT(*) FROM data_issues GROUP BY issue_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count data issues: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.IssueType]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan issue count: %w", err)
		}
		counts[models.IssueType(kind)] = n
	}
	return counts, rows.Err()
}

// PurgeOlderThan deletes issues created before cutoff and returns how many were removed.
func (r *PostgresIssueRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM data_issues WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge data issues: %w", err)
	}
	return res.RowsAffected()
}

func buildIssueListQuery(q models.IssueQuery) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if q.Source != "" {
		args = append(args, string(q.Source))
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, string(q.Type))
		where = append(where, fmt.Sprintf("issue_type = $%d", len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultIssueLimit
	}
	args = append(args, limit)

	var b strings.Builder
	b.WriteString("SELECT id, event_id, source, issue_type, message, details, created_at FROM data_issues")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

func marshalDetails(details map[string]interface{}) (sql.NullString, error) {
	if len(details) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
