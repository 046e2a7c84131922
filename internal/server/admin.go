// internal/server/admin.go
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	stderrors "cyphr-server/internal/common/errors"
	"cyphr-server/internal/common/validation"
	"cyphr-server/internal/routing"
	"cyphr-server/internal/store"
)

// ==========================
// Endpoint Profile API
// ==========================

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.endpoints.List(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if profiles == nil {
		profiles = []routing.EndpointProfile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": profiles,
		"count":     len(profiles),
	})
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("path")

	profile, err := s.endpoints.Get(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(path))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpsertEndpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
		return
	}

	result, err := validation.ValidateJSON(body, validation.EndpointProfileSchema)
	if err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
		return
	}
	if !result.Valid {
		writeError(w, s.logger, stderrors.NewValidationFailedError(result.ErrorString()))
		return
	}

	var profile routing.EndpointProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
		return
	}

	saved, err := s.endpoints.Upsert(r.Context(), profile)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	path := "/" + r.PathValue("path")

	err := s.endpoints.Delete(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(path))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": path})
}

// ==========================
// Request Log API
// ==========================

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LogFilter{
		StartDate:        q.Get("start_date"),
		EndDate:          q.Get("end_date"),
		Endpoint:         q.Get("endpoint"),
		SelectedEndpoint: q.Get("selected_endpoint"),
		Model:            q.Get("model"),
		Status:           q.Get("status"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := s.logs.List(r.Context(), filter)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if entries == nil {
		entries = []store.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
	})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError("log id must be an integer"))
		return
	}

	entry, err := s.logs.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(r.URL.Path))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.logs.Stats(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePurgeLogs(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, s.logger, stderrors.NewMalformedPayloadError("days must be a non-negative integer"))
			return
		}
		days = parsed
	}

	deleted, err := s.logs.Purge(r.Context(), days)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":      deleted,
		"days_to_keep": days,
	})
}

// ==========================
// Session API
// ==========================

type createSessionRequest struct {
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
			return
		}
	}

	session, created, err := s.sessions.GetOrCreate(r.Context(), req.SessionID, req.Metadata)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	session, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewSessionNotFoundError(id))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.sessions.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewSessionNotFoundError(id))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}
