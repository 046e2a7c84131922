// internal/store/logs.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cyphr-server/internal/common/logger"
)

// LogEntry is one recorded request.
type LogEntry struct {
	ID               int64   `json:"id"`
	Endpoint         string  `json:"endpoint"`
	SelectedEndpoint string  `json:"selected_endpoint,omitempty"`
	PromptData       string  `json:"prompt_data,omitempty"`
	Response         string  `json:"response,omitempty"`
	ExecutionTimeMs  int64   `json:"execution_time_ms"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	Model            string  `json:"model,omitempty"`
	Status           string  `json:"status"`
	ClientIP         string  `json:"client_ip,omitempty"`
	Timestamp        string  `json:"timestamp"`
}

// LogFilter narrows a log listing. Zero values mean "no filter".
type LogFilter struct {
	StartDate        string
	EndDate          string
	Endpoint         string
	SelectedEndpoint string
	Model            string
	Status           string
	Limit            int
	Offset           int
}

// UsageCount pairs a grouping value with how often it occurred.
type UsageCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// LogStats aggregates the request log table.
type LogStats struct {
	TotalRequests         int64        `json:"total_requests"`
	TotalSuccess          int64        `json:"total_success"`
	TotalErrors           int64        `json:"total_errors"`
	AvgExecutionTime      float64      `json:"avg_execution_time"`
	TotalInputTokens      int64        `json:"total_input_tokens"`
	TotalOutputTokens     int64        `json:"total_output_tokens"`
	EndpointUsage         []UsageCount `json:"endpoint_usage"`
	SelectedEndpointUsage []UsageCount `json:"selected_endpoint_usage"`
	ModelUsage            []UsageCount `json:"model_usage"`
}

// LogStore persists request logs in PostgreSQL.
type LogStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLogStore(db *sql.DB, log logger.Logger) *LogStore {
	return &LogStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "log-store"}),
	}
}

// EnsureSchema creates the request_logs table and its indexes.
func (s *LogStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS request_logs (
			id BIGSERIAL PRIMARY KEY,
			endpoint TEXT NOT NULL,
			selected_endpoint TEXT,
			prompt_data TEXT,
			response TEXT,
			execution_time_ms BIGINT NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			model TEXT,
			status TEXT NOT NULL DEFAULT 'success',
			client_ip TEXT,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_endpoint ON request_logs(endpoint)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON request_logs(timestamp)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create request_logs schema: %w", err)
		}
	}
	return nil
}

// Insert records one request and returns its id.
func (s *LogStore) Insert(ctx context.Context, entry LogEntry) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO request_logs (
			endpoint, selected_endpoint, prompt_data, response,
			execution_time_ms, input_tokens, output_tokens, model, status, client_ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		entry.Endpoint, nullableString(entry.SelectedEndpoint), entry.PromptData, entry.Response,
		entry.ExecutionTimeMs, entry.InputTokens, entry.OutputTokens,
		nullableString(entry.Model), entry.Status, nullableString(entry.ClientIP),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request log: %w", err)
	}
	return id, nil
}

const logColumns = "id, endpoint, selected_endpoint, prompt_data, response, execution_time_ms, input_tokens, output_tokens, model, status, client_ip, timestamp"

// List returns log entries newest first, narrowed by the filter.
func (s *LogStore) List(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	query := "SELECT " + logColumns + " FROM request_logs WHERE 1=1"
	var params []interface{}

	addFilter := func(clause, value string) {
		if value != "" {
			params = append(params, value)
			query += fmt.Sprintf(" AND %s $%d", clause, len(params))
		}
	}
	addFilter("timestamp >=", filter.StartDate)
	addFilter("timestamp <=", filter.EndDate)
	addFilter("endpoint =", filter.Endpoint)
	addFilter("selected_endpoint =", filter.SelectedEndpoint)
	addFilter("model =", filter.Model)
	addFilter("status =", filter.Status)

	params = append(params, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(params)-1, len(params))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request log row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request log rows: %w", err)
	}
	return entries, nil
}

// GetByID returns a single log entry.
func (s *LogStore) GetByID(ctx context.Context, id int64) (*LogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+logColumns+" FROM request_logs WHERE id = $1", id)

	entry, err := scanLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request log %d: %w", id, err)
	}
	return entry, nil
}

// Stats aggregates totals and usage breakdowns over all logged requests.
func (s *LogStore) Stats(ctx context.Context) (*LogStats, error) {
	stats := &LogStats{
		EndpointUsage:         []UsageCount{},
		SelectedEndpointUsage: []UsageCount{},
		ModelUsage:            []UsageCount{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) AS total_requests,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) AS total_success,
			COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0) AS total_errors,
			COALESCE(AVG(execution_time_ms), 0) AS avg_execution_time,
			COALESCE(SUM(input_tokens), 0) AS total_input_tokens,
			COALESCE(SUM(output_tokens), 0) AS total_output_tokens
		FROM request_logs`).Scan(
		&stats.TotalRequests, &stats.TotalSuccess, &stats.TotalErrors,
		&stats.AvgExecutionTime, &stats.TotalInputTokens, &stats.TotalOutputTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate request logs: %w", err)
	}

	usageQueries := []struct {
		query string
		dest  *[]UsageCount
	}{
		{
			`SELECT endpoint, COUNT(*) AS count FROM request_logs GROUP BY endpoint ORDER BY count DESC`,
			&stats.EndpointUsage,
		},
		{
			`SELECT selected_endpoint, COUNT(*) AS count FROM request_logs WHERE selected_endpoint IS NOT NULL GROUP BY selected_endpoint ORDER BY count DESC`,
			&stats.SelectedEndpointUsage,
		},
		{
			`SELECT model, COUNT(*) AS count FROM request_logs WHERE model IS NOT NULL GROUP BY model ORDER BY count DESC`,
			&stats.ModelUsage,
		},
	}

	for _, uq := range usageQueries {
		counts, err := s.queryUsage(ctx, uq.query)
		if err != nil {
			return nil, err
		}
		*uq.dest = counts
	}

	return stats, nil
}

// Purge deletes logs older than daysToKeep days and returns how many went.
func (s *LogStore) Purge(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM request_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge request logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge request logs: %w", err)
	}

	s.logger.Info("purged request logs", map[string]interface{}{
		"deleted":    deleted,
		"daysToKeep": daysToKeep,
	})
	return deleted, nil
}

func (s *LogStore) queryUsage(ctx context.Context, query string) ([]UsageCount, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("usage breakdown: %w", err)
	}
	defer rows.Close()

	counts := []UsageCount{}
	for rows.Next() {
		var uc UsageCount
		if err := rows.Scan(&uc.Value, &uc.Count); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		counts = append(counts, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return counts, nil
}

func scanLogEntry(row rowScanner) (*LogEntry, error) {
	var entry LogEntry
	var selectedEndpoint, model, clientIP sql.NullString
	var timestamp time.Time

	err := row.Scan(
		&entry.ID, &entry.Endpoint, &selectedEndpoint, &entry.PromptData, &entry.Response,
		&entry.ExecutionTimeMs, &entry.InputTokens, &entry.OutputTokens,
		&model, &entry.Status, &clientIP, &timestamp,
	)
	if err != nil {
		return nil, err
	}

	entry.SelectedEndpoint = selectedEndpoint.String
	entry.Model = model.String
	entry.ClientIP = clientIP.String
	entry.Timestamp = timestamp.UTC().Format(time.RFC3339)
	return &entry, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
