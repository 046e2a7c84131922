package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyphr-server/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func newLogStore(t *testing.T) (*LogStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLogStore(db, logger.NewTestLogger(t)), mock
}

func logRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "endpoint", "selected_endpoint", "prompt_data", "response",
		"execution_time_ms", "input_tokens", "output_tokens", "model", "status", "client_ip", "timestamp",
	})
}

// ==========================
// Insert
// ==========================

func TestLogStore_Insert(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectQuery(`INSERT INTO request_logs`).
		WithArgs("/analytics", "/analytics", "prompt", "response",
			int64(125), 40, 120, "claude-3-5-sonnet", "success", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Insert(context.Background(), LogEntry{
		Endpoint:         "/analytics",
		SelectedEndpoint: "/analytics",
		PromptData:       "prompt",
		Response:         "response",
		ExecutionTimeMs:  125,
		InputTokens:      40,
		OutputTokens:     120,
		Model:            "claude-3-5-sonnet",
		Status:           "success",
		ClientIP:         "10.0.0.1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestLogStore_InsertEmptyOptionalsAreNull(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectQuery(`INSERT INTO request_logs`).
		WithArgs("/route", nil, "", "", int64(0), 0, 0, nil, "error", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	_, err := store.Insert(context.Background(), LogEntry{
		Endpoint: "/route",
		Status:   "error",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// List
// ==========================

func TestLogStore_ListDefaults(t *testing.T) {
	store, mock := newLogStore(t)

	rows := logRows().AddRow(
		int64(1), "/analytics", "/analytics", "p", "r",
		int64(100), 10, 20, "claude-3-5-sonnet", "success", "10.0.0.1", testTime,
	)
	mock.ExpectQuery(`SELECT .+ FROM request_logs WHERE 1=1 ORDER BY timestamp DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/analytics", entries[0].Endpoint)
	assert.Equal(t, "2025-06-01T12:00:00Z", entries[0].Timestamp)
}

func TestLogStore_ListAppliesFilters(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectQuery(`SELECT .+ FROM request_logs WHERE 1=1 AND timestamp >= \$1 AND endpoint = \$2 AND status = \$3 ORDER BY timestamp DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("2025-06-01", "/analytics", "success", 25, 50).
		WillReturnRows(logRows())

	entries, err := store.List(context.Background(), LogFilter{
		StartDate: "2025-06-01",
		Endpoint:  "/analytics",
		Status:    "success",
		Limit:     25,
		Offset:    50,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogStore_GetByIDNotFound(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectQuery(`SELECT .+ FROM request_logs WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(logRows())

	_, err := store.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ==========================
// Stats / Purge
// ==========================

func TestLogStore_Stats(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) AS total_requests`).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_requests", "total_success", "total_errors",
			"avg_execution_time", "total_input_tokens", "total_output_tokens",
		}).AddRow(int64(10), int64(8), int64(2), 143.5, int64(4000), int64(9000)))

	mock.ExpectQuery(`SELECT endpoint, COUNT\(\*\) AS count FROM request_logs GROUP BY endpoint`).
		WillReturnRows(sqlmock.NewRows([]string{"endpoint", "count"}).
			AddRow("/analytics", int64(6)).
			AddRow("/general", int64(4)))

	mock.ExpectQuery(`SELECT selected_endpoint, COUNT\(\*\) AS count FROM request_logs WHERE selected_endpoint IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"selected_endpoint", "count"}).
			AddRow("/analytics", int64(6)))

	mock.ExpectQuery(`SELECT model, COUNT\(\*\) AS count FROM request_logs WHERE model IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"model", "count"}).
			AddRow("claude-3-5-sonnet", int64(10)))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalRequests)
	assert.Equal(t, int64(8), stats.TotalSuccess)
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.InDelta(t, 143.5, stats.AvgExecutionTime, 0.001)
	require.Len(t, stats.EndpointUsage, 2)
	assert.Equal(t, UsageCount{Value: "/analytics", Count: 6}, stats.EndpointUsage[0])
	require.Len(t, stats.ModelUsage, 1)
	assert.Equal(t, "claude-3-5-sonnet", stats.ModelUsage[0].Value)
}

func TestLogStore_Purge(t *testing.T) {
	store, mock := newLogStore(t)

	mock.ExpectExec(`DELETE FROM request_logs WHERE timestamp < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	deleted, err := store.Purge(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(12), deleted)
}
