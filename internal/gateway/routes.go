package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/version"
)

const defaultFeedbackLimit = 50

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptimeSeconds"`
	Clients       int                    `json:"clients"`
	Database      string                 `json:"database,omitempty"`
	Channels      []domain.ChannelStatus `json:"channels"`
}

// ChatRequest is the body of POST /api/chat and the chat.send params.
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// ChatResponse is the answer to a ChatRequest.
type ChatResponse struct {
	Reply    string `json:"reply"`
	RunID    string `json:"runId"`
	ItemID   string `json:"itemId,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// HistoryResponse carries a conversation's stored turns.
type HistoryResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []domain.Message `json:"messages"`
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.requireToken(s.handleStatus))
	mux.HandleFunc("GET /api/conversations", s.requireToken(s.handleConversations))
	mux.HandleFunc("GET /api/conversations/{id}/history", s.requireToken(s.handleHistory))
	mux.HandleFunc("DELETE /api/conversations/{id}", s.requireToken(s.handleClearHistory))
	mux.HandleFunc("POST /api/chat", s.requireToken(s.handleChat))
	mux.HandleFunc("GET /api/feedback", s.requireToken(s.handleFeedback))
	mux.HandleFunc("GET /api/feedback/summary", s.requireToken(s.handleFeedbackSummary))

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all WebSocket RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("conversations.list", s.rpcConversationsList)
	s.Handle("history.get", s.rpcHistoryGet)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("subscribe", s.rpcSubscribe)
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated endpoints.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.databaseState(r.Context()) != databaseOK {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

const databaseOK = "ok"

// databaseState pings the database, if one is attached. It returns "ok" when
// none is.
func (s *Server) databaseState(ctx context.Context) string {
	if s.database == nil {
		return databaseOK
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.database.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		return err.Error()
	}
	return databaseOK
}

func (s *Server) channelStatuses() []domain.ChannelStatus {
	if s.channels == nil {
		return []domain.ChannelStatus{}
	}
	return s.channels.Status()
}

func (s *Server) status(ctx context.Context) StatusResponse {
	return StatusResponse{
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Clients:       s.clients.Count(),
		Database:      s.databaseState(ctx),
		Channels:      s.channelStatuses(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}
	ids, err := s.history.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"conversations": nonNil(ids)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}
	id := r.PathValue("id")
	msgs := s.history.Load(r.Context(), id)
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ConversationID: id, Messages: msgs})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}
	id := r.PathValue("id")
	if err := s.history.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.correlator != nil {
		s.correlator.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.replier == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not available")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp, status, err := s.chat(r.Context(), req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type requestError string

func (e requestError) Error() string { return string(e) }

// chat validates a ChatRequest and runs it. The returned status is the HTTP
// status matching the error.
func (s *Server) chat(ctx context.Context, req ChatRequest) (*ChatResponse, int, error) {
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Text = strings.TrimSpace(req.Text)
	if req.ConversationID == "" {
		return nil, http.StatusBadRequest, requestError("conversationId is required")
	}
	if req.Text == "" {
		return nil, http.StatusBadRequest, requestError("text is required")
	}

	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	res, err := s.replier.Reply(ctx, req.ConversationID, req.Text)
	if err != nil {
		s.log.Error().Err(err).Str("conversation", req.ConversationID).Msg("chat request failed")
		return nil, http.StatusBadGateway, err
	}
	return &ChatResponse{
		Reply:    res.Reply,
		RunID:    res.RunID,
		ItemID:   res.ItemID,
		Fallback: res.Fallback,
	}, http.StatusOK, nil
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback ledger not available")
		return
	}
	limit := defaultFeedbackLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.feedback.List(r.Context(), r.URL.Query().Get("conversationId"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []domain.Feedback{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Feedback{"feedback": items})
}

func (s *Server) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback ledger not available")
		return
	}
	summary, err := s.feedback.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	rc.Respond(s.channelStatuses())
}

func (s *Server) rpcConversationsList(rc *RequestContext) {
	if s.history == nil {
		rc.RespondError("unavailable", "history not available")
		return
	}
	ids, err := s.history.List(rc.Ctx)
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	rc.Respond(map[string][]string{"conversations": nonNil(ids)})
}

type historyGetParams struct {
	ConversationID string `json:"conversationId"`
}

func (s *Server) rpcHistoryGet(rc *RequestContext) {
	if s.history == nil {
		rc.RespondError("unavailable", "history not available")
		return
	}
	var p historyGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ConversationID == "" {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}
	msgs := s.history.Load(rc.Ctx, p.ConversationID)
	if msgs == nil {
		msgs = []domain.Message{}
	}
	rc.Respond(HistoryResponse{ConversationID: p.ConversationID, Messages: msgs})
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.replier == nil {
		rc.RespondError("unavailable", "chat not available")
		return
	}
	var req ChatRequest
	if err := rc.Params(&req); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	resp, status, err := s.chat(rc.Ctx, req)
	if err != nil {
		code := "llm_error"
		if status == http.StatusBadRequest {
			code = "invalid_params"
		}
		rc.RespondError(code, err.Error())
		return
	}
	rc.Respond(resp)
}

type subscribeParams struct {
	Conversations []string `json:"conversations"`
}

func (s *Server) rpcSubscribe(rc *RequestContext) {
	var p subscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Client.Subscribe(p.Conversations)
	rc.Respond(map[string]any{"conversations": nonNil(p.Conversations)})
}
