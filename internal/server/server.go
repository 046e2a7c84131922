// Package server exposes the HTTP surface: dynamic processing endpoints,
// auto-routing, and the admin API for profiles, logs, and sessions.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cyphr-server/internal/common/config"
	"cyphr-server/internal/common/logger"
	"cyphr-server/internal/common/observability"
	"cyphr-server/internal/llm"
	"cyphr-server/internal/routing"
	"cyphr-server/internal/store"
)

// EndpointStore is the profile persistence the server depends on.
type EndpointStore interface {
	Get(ctx context.Context, endpoint string) (*routing.EndpointProfile, error)
	List(ctx context.Context) ([]routing.EndpointProfile, error)
	Upsert(ctx context.Context, profile routing.EndpointProfile) (*routing.EndpointProfile, error)
	Delete(ctx context.Context, endpoint string) error
}

// LogStore is the request log persistence the server depends on.
type LogStore interface {
	Insert(ctx context.Context, entry store.LogEntry) (int64, error)
	List(ctx context.Context, filter store.LogFilter) ([]store.LogEntry, error)
	GetByID(ctx context.Context, id int64) (*store.LogEntry, error)
	Stats(ctx context.Context) (*store.LogStats, error)
	Purge(ctx context.Context, daysToKeep int) (int64, error)
}

// SessionStore is the conversation persistence the server depends on.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID string, metadata map[string]interface{}) (*store.Session, bool, error)
	Get(ctx context.Context, sessionID string) (*store.Session, error)
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	PromptContext(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// ViewFetcher pulls dashboard data from Tableau when a request names a view
// instead of carrying a payload.
type ViewFetcher interface {
	FetchViewData(ctx context.Context, viewID string) (json.RawMessage, error)
}

// Server wires the request pipeline and admin API together.
type Server struct {
	cfg       *config.Config
	endpoints EndpointStore
	logs      LogStore
	sessions  SessionStore
	processor llm.Processor
	views     ViewFetcher
	obs       *observability.Observability
	logger    logger.Logger
}

func New(
	cfg *config.Config,
	endpoints EndpointStore,
	logs LogStore,
	sessions SessionStore,
	processor llm.Processor,
	views ViewFetcher,
	obs *observability.Observability,
	log logger.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		endpoints: endpoints,
		logs:      logs,
		sessions:  sessions,
		processor: processor,
		views:     views,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "server"}),
	}
}

// Handler builds the routing table. Anything not matched by a fixed route
// falls through to the dynamic endpoint dispatcher.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /route", s.handleRoute)

	mux.HandleFunc("GET /api/endpoints", s.handleListEndpoints)
	mux.HandleFunc("POST /api/endpoints", s.handleUpsertEndpoint)
	mux.HandleFunc("GET /api/endpoints/{path}", s.handleGetEndpoint)
	mux.HandleFunc("DELETE /api/endpoints/{path}", s.handleDeleteEndpoint)

	mux.HandleFunc("GET /api/logs", s.handleListLogs)
	mux.HandleFunc("DELETE /api/logs", s.handlePurgeLogs)
	mux.HandleFunc("GET /api/logs/stats", s.handleLogStats)
	mux.HandleFunc("GET /api/logs/{id}", s.handleGetLog)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("POST /", s.handleDynamic)

	return s.withCORS(s.withRequestLogging(mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "cyphr AI Extension Server is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.endpoints.List(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
