// internal/store/endpoints.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cyphr-server/internal/common/logger"
	"cyphr-server/internal/routing"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const endpointColumns = "endpoint, agent_id, name, description, indicators, priority, model, temperature, instructions, created_at, updated_at"

// EndpointStore persists endpoint profiles in PostgreSQL.
type EndpointStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewEndpointStore(db *sql.DB, log logger.Logger) *EndpointStore {
	return &EndpointStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "endpoint-store"}),
	}
}

// EnsureSchema creates the endpoints table when it does not exist yet.
func (s *EndpointStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS endpoints (
			id SERIAL PRIMARY KEY,
			endpoint TEXT UNIQUE NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			instructions TEXT NOT NULL,
			indicators JSONB NOT NULL DEFAULT '[]',
			priority INTEGER NOT NULL DEFAULT 100,
			model TEXT NOT NULL DEFAULT 'claude-3-5-sonnet',
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create endpoints table: %w", err)
	}
	return nil
}

// Get returns the profile registered for an endpoint path.
func (s *EndpointStore) Get(ctx context.Context, endpoint string) (*routing.EndpointProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+endpointColumns+" FROM endpoints WHERE endpoint = $1", endpoint)

	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %s: %w", endpoint, err)
	}
	return profile, nil
}

// List returns every registered profile ordered by priority, lowest number
// (most important) first.
func (s *EndpointStore) List(ctx context.Context) ([]routing.EndpointProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+endpointColumns+" FROM endpoints ORDER BY priority ASC")
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var profiles []routing.EndpointProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint row: %w", err)
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoint rows: %w", err)
	}
	return profiles, nil
}

// Upsert inserts or replaces a profile keyed on its endpoint path. Missing
// name and description fields are derived the way the admin UI expects them.
func (s *EndpointStore) Upsert(ctx context.Context, profile routing.EndpointProfile) (*routing.EndpointProfile, error) {
	applyProfileDefaults(&profile)

	indicators, err := json.Marshal(profile.Indicators)
	if err != nil {
		return nil, fmt.Errorf("marshal indicators: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO endpoints (endpoint, agent_id, name, description, indicators, priority, model, temperature, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (endpoint) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			indicators = EXCLUDED.indicators,
			priority = EXCLUDED.priority,
			model = EXCLUDED.model,
			temperature = EXCLUDED.temperature,
			instructions = EXCLUDED.instructions,
			updated_at = NOW()`,
		profile.Endpoint, profile.AgentID, profile.Name, profile.Description,
		indicators, profile.Priority, profile.Model, profile.Temperature, profile.Instructions)
	if err != nil {
		return nil, fmt.Errorf("upsert endpoint %s: %w", profile.Endpoint, err)
	}

	s.logger.Info("endpoint profile saved", map[string]interface{}{
		"endpoint": profile.Endpoint,
		"priority": profile.Priority,
		"model":    profile.Model,
	})

	return s.Get(ctx, profile.Endpoint)
}

// Delete removes a profile. Returns ErrNotFound when nothing matched.
func (s *EndpointStore) Delete(ctx context.Context, endpoint string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM endpoints WHERE endpoint = $1", endpoint)
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", endpoint, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", endpoint, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("endpoint profile deleted", map[string]interface{}{"endpoint": endpoint})
	return nil
}

// SeedDefaults registers the three stock profiles when the table is empty.
func (s *EndpointStore) SeedDefaults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM endpoints").Scan(&count); err != nil {
		return fmt.Errorf("count endpoints: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, profile := range DefaultProfiles() {
		if _, err := s.Upsert(ctx, profile); err != nil {
			return err
		}
	}

	s.logger.Info("seeded default endpoint profiles", map[string]interface{}{
		"count": len(DefaultProfiles()),
	})
	return nil
}

// DefaultProfiles returns the stock analytics, summarization, and general
// question profiles registered on first start.
func DefaultProfiles() []routing.EndpointProfile {
	return []routing.EndpointProfile{
		{
			Endpoint:     routing.EndpointAnalytics,
			AgentID:      "analytics-agent",
			Name:         "Analytics",
			Description:  "Analyze dashboard data to identify trends, patterns, and insights",
			Instructions: "Analyze data and provide comprehensive insights with bullet points.",
			Indicators:   []string{"trend", "analysis", "correlation", "insight", "detail", "breakdown"},
			Priority:     10,
			Model:        "claude-3-5-sonnet",
			Temperature:  0.5,
		},
		{
			Endpoint:     routing.EndpointSummarization,
			AgentID:      "summary-agent",
			Name:         "Summarization",
			Description:  "Provide concise summaries of dashboard data",
			Instructions: "Create a concise summary of the provided data, highlighting key points.",
			Indicators:   []string{"summary", "overview", "report", "brief"},
			Priority:     20,
			Model:        "claude-3-5-sonnet",
			Temperature:  0.3,
		},
		{
			Endpoint:     routing.EndpointGeneral,
			AgentID:      "general-agent",
			Name:         "General Questions",
			Description:  "Answer specific questions about dashboard data",
			Instructions: "Respond helpfully to user queries about the data.",
			Indicators:   []string{"question", "query", "what", "why", "how", "when", "where"},
			Priority:     30,
			Model:        "claude-3-5-sonnet",
			Temperature:  0.7,
		},
	}
}

func applyProfileDefaults(profile *routing.EndpointProfile) {
	if profile.Name == "" {
		trimmed := strings.Trim(profile.Endpoint, "/")
		if trimmed != "" {
			profile.Name = strings.ToUpper(trimmed[:1]) + trimmed[1:]
		}
	}
	if profile.Description == "" && profile.Instructions != "" {
		profile.Description = strings.SplitN(profile.Instructions, ".", 2)[0] + "."
	}
	if profile.Indicators == nil {
		profile.Indicators = []string{}
	}
	if profile.Priority == 0 {
		profile.Priority = 100
	}
	if profile.Model == "" {
		profile.Model = "claude-3-5-sonnet"
	}
	if profile.Temperature == 0 {
		profile.Temperature = 0.7
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*routing.EndpointProfile, error) {
	var profile routing.EndpointProfile
	var indicators []byte
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&profile.Endpoint, &profile.AgentID, &profile.Name, &profile.Description,
		&indicators, &profile.Priority, &profile.Model, &profile.Temperature,
		&profile.Instructions, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	profile.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	profile.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)

	if err := json.Unmarshal(indicators, &profile.Indicators); err != nil {
		profile.Indicators = []string{}
	}
	return &profile, nil
}
