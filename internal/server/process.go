// internal/server/process.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"cyphr-server/internal/anonymize"
	stderrors "cyphr-server/internal/common/errors"
	"cyphr-server/internal/format"
	"cyphr-server/internal/llm"
	"cyphr-server/internal/optimize"
	"cyphr-server/internal/prompt"
	"cyphr-server/internal/routing"
	"cyphr-server/internal/store"
)

// ProcessRequest is the body accepted by every processing endpoint. A view id
// can stand in for inline data; the payload is then fetched from Tableau.
type ProcessRequest struct {
	Data       string `json:"data"`
	Question   string `json:"question,omitempty"`
	FormatType string `json:"format_type,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	ViewID     string `json:"view_id,omitempty"`
}

// ProcessResponse carries the formatted model reply.
type ProcessResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
}

// RouteRequest is the body for /route: data plus an optional task pin.
type RouteRequest struct {
	Data       string `json:"data"`
	TaskType   string `json:"task_type,omitempty"`
	FormatType string `json:"format_type,omitempty"`
	Question   string `json:"question,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	ViewID     string `json:"view_id,omitempty"`
}

// RouteResponse includes where the request landed and why.
type RouteResponse struct {
	Response         string        `json:"response"`
	SelectedEndpoint string        `json:"selected_endpoint"`
	SessionID        string        `json:"session_id,omitempty"`
	Routing          routing.Trace `json:"routing"`
}

// handleDynamic dispatches POSTs on any registered profile path.
func (s *Server) handleDynamic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/api/") {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(path))
		return
	}

	profile, err := s.endpoints.Get(r.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(path))
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
		return
	}

	resp, err := s.process(r.Context(), *profile, req, clientIP(r), path)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRoute scores profiles against the payload and processes the request
// on the winner.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, stderrors.NewMalformedPayloadError(err.Error()))
		return
	}

	profiles, err := s.endpoints.List(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	endpoint, trace, err := routing.Route(req.Data, req.Question, routing.ParseTaskType(req.TaskType), profiles)
	if errors.Is(err, routing.ErrProfileNotFound) {
		// An explicit task with no matching profile degrades to the default
		// profile. Only an empty profile set is a hard failure.
		if fallback := s.fallbackProfile(profiles); fallback != "" {
			endpoint = fallback
			trace.Selected = fallback
			trace.Fallback = fmt.Sprintf("no profile for task %q, using %s", req.TaskType, fallback)
			err = nil
		}
	}
	if err != nil {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(req.TaskType))
		return
	}

	var selected *routing.EndpointProfile
	for i := range profiles {
		if profiles[i].Endpoint == endpoint {
			selected = &profiles[i]
			break
		}
	}
	if selected == nil {
		writeError(w, s.logger, stderrors.NewEndpointNotFoundError(endpoint))
		return
	}

	s.logger.Info("request routed", map[string]interface{}{
		"selectedEndpoint": endpoint,
		"taskType":         req.TaskType,
		"fallback":         trace.Fallback,
	})

	resp, err := s.process(r.Context(), *selected, ProcessRequest{
		Data:       req.Data,
		Question:   req.Question,
		FormatType: req.FormatType,
		SessionID:  req.SessionID,
		ViewID:     req.ViewID,
	}, clientIP(r), "/route")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, RouteResponse{
		Response:         resp.Response,
		SelectedEndpoint: endpoint,
		SessionID:        resp.SessionID,
		Routing:          trace,
	})
}

// process runs the full pipeline: fetch, anonymize, optimize, prompt,
// complete, format, then record the request.
func (s *Server) process(ctx context.Context, profile routing.EndpointProfile, req ProcessRequest, ip, requestPath string) (*ProcessResponse, error) {
	start := time.Now()

	data := req.Data
	if data == "" && req.ViewID != "" && s.views != nil {
		raw, err := s.views.FetchViewData(ctx, req.ViewID)
		if err != nil {
			s.recordOutcome(ctx, requestPath, profile, "", "", ip, start, "error")
			return nil, err
		}
		data = string(raw)
	}

	question := req.Question
	if q, inner, ok := splitQuestionPayload(data); ok {
		if question == "" {
			question = q
		}
		data = inner
	}

	sessionID := ""
	history := ""
	if req.SessionID != "" {
		session, _, err := s.sessions.GetOrCreate(ctx, req.SessionID, nil)
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
		history, err = s.sessions.PromptContext(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	anonymized := anonymize.Data(data)
	optimized := optimize.Optimize(anonymized)
	dashboard := isDashboardPayload(anonymized)

	var promptText string
	switch profile.Endpoint {
	case routing.EndpointAnalytics:
		promptText = prompt.Analytics(optimized, dashboard)
	case routing.EndpointSummarization:
		promptText = prompt.Summarization(optimized, dashboard)
	default:
		if sessionID != "" {
			promptText = prompt.Conversational(question, history, optimized, dashboard)
		} else {
			promptText = prompt.General(question, optimized, dashboard)
		}
	}

	completion, err := s.processor.Complete(ctx, llm.Request{
		Prompt:       promptText,
		Model:        profile.Model,
		Temperature:  profile.Temperature,
		Instructions: profile.Instructions,
	})
	if err != nil {
		s.recordOutcome(ctx, requestPath, profile, promptText, "", ip, start, "error")
		return nil, err
	}

	formatted := format.Format(completion, format.ParseFormatType(req.FormatType))

	if sessionID != "" {
		if question != "" {
			if err := s.sessions.AppendMessage(ctx, sessionID, "user", question); err != nil {
				s.logger.Warn("failed to append user message", map[string]interface{}{
					"sessionId": sessionID, "error": err.Error(),
				})
			}
		}
		if err := s.sessions.AppendMessage(ctx, sessionID, "assistant", formatted); err != nil {
			s.logger.Warn("failed to append assistant message", map[string]interface{}{
				"sessionId": sessionID, "error": err.Error(),
			})
		}
	}

	s.recordOutcome(ctx, requestPath, profile, promptText, formatted, ip, start, "success")

	return &ProcessResponse{Response: formatted, SessionID: sessionID}, nil
}

func (s *Server) recordOutcome(ctx context.Context, requestPath string, profile routing.EndpointProfile, promptText, response, ip string, start time.Time, status string) {
	elapsed := time.Since(start)
	inputTokens := llm.EstimateTokens(promptText)
	outputTokens := llm.EstimateTokens(response)

	if _, err := s.logs.Insert(ctx, store.LogEntry{
		Endpoint:         requestPath,
		SelectedEndpoint: profile.Endpoint,
		PromptData:       promptText,
		Response:         response,
		ExecutionTimeMs:  elapsed.Milliseconds(),
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		Model:            profile.Model,
		Status:           status,
		ClientIP:         ip,
	}); err != nil {
		s.logger.Warn("failed to record request log", map[string]interface{}{
			"endpoint": requestPath,
			"error":    err.Error(),
		})
	}

	if s.obs != nil {
		s.obs.RecordRequest(ctx, profile.Endpoint, status)
		s.obs.RecordDuration(ctx, elapsed, profile.Endpoint)
		s.obs.RecordTokens(ctx, "input", int64(inputTokens))
		s.obs.RecordTokens(ctx, "output", int64(outputTokens))
	}
}

// fallbackProfile resolves the endpoint a routing miss degrades to: the
// configured default when registered, then the conventional analytics
// profile, then the first registered one.
func (s *Server) fallbackProfile(profiles []routing.EndpointProfile) string {
	if def := s.cfg.LLM.DefaultEndpoint; def != "" {
		for _, p := range profiles {
			if p.Endpoint == def {
				return def
			}
		}
	}
	for _, p := range profiles {
		if p.Endpoint == routing.EndpointAnalytics {
			return p.Endpoint
		}
	}
	if len(profiles) > 0 {
		return profiles[0].Endpoint
	}
	return ""
}

// splitQuestionPayload unwraps {"question": ..., "data": ...} envelopes that
// browser extensions send on question-style requests.
func splitQuestionPayload(data string) (string, string, bool) {
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, "{") {
		return "", "", false
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return "", "", false
	}

	rawQuestion, hasQuestion := payload["question"]
	rawData, hasData := payload["data"]
	if !hasQuestion || !hasData {
		return "", "", false
	}

	var question string
	if err := json.Unmarshal(rawQuestion, &question); err != nil {
		return "", "", false
	}
	return question, string(rawData), true
}

// isDashboardPayload reports whether data is the combined-worksheets format.
func isDashboardPayload(data string) bool {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return false
	}

	raw, ok := payload["worksheets"]
	if !ok {
		return false
	}
	var worksheets []json.RawMessage
	return json.Unmarshal(raw, &worksheets) == nil
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
