package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:    code,
		Message: message,
	})
	if err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
