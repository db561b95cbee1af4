package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/zueira/internal/agent"
	"github.com/soyeahso/zueira/internal/channel"
	"github.com/soyeahso/zueira/internal/config"
	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/history"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/metrics"
	"github.com/soyeahso/zueira/internal/routing"
	"github.com/soyeahso/zueira/internal/version"
)

// ErrClientClosed is returned when sending to a closed connection.
var ErrClientClosed = errors.New("client connection closed")

const (
	handshakeTimeout = 10 * time.Second
	maxPayload       = 1 << 20
	chatTimeout      = 5 * time.Minute
)

// Replier runs one text turn, feedback side channel included.
type Replier interface {
	Reply(ctx context.Context, conversationID, text string) (*agent.RunResult, error)
}

// FeedbackLedger lists locally recorded feedback.
type FeedbackLedger interface {
	List(ctx context.Context, conversationID string, limit int) ([]domain.Feedback, error)
	Summary(ctx context.Context) (map[domain.Polarity]int, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Forgetter drops the feedback correlation kept for a conversation.
type Forgetter interface {
	Forget(conversationID string)
}

// Server is the gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	eventSeq atomic.Int64

	replier    Replier
	history    history.Manager
	correlator Forgetter
	feedback   FeedbackLedger
	channels   *channel.Registry
	metrics    *metrics.Metrics
	database   Pinger

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithReplier enables POST /api/chat and the chat.send method.
func WithReplier(r Replier) ServerOption {
	return func(s *Server) {
		s.replier = r
	}
}

// WithHistory enables the conversation history endpoints.
func WithHistory(m history.Manager) ServerOption {
	return func(s *Server) {
		s.history = m
	}
}

// WithCorrelator makes conversation deletes also drop the run and item
// records that attribute later feedback.
func WithCorrelator(c Forgetter) ServerOption {
	return func(s *Server) {
		s.correlator = c
	}
}

// WithFeedback enables the feedback ledger endpoints.
func WithFeedback(f FeedbackLedger) ServerOption {
	return func(s *Server) {
		s.feedback = f
	}
}

// WithChannels sets the channel registry for channel status reporting.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) {
		s.channels = ch
	}
}

// WithDatabase makes /health and the status endpoints ping the database.
func WithDatabase(p Pinger) ServerOption {
	return func(s *Server) {
		s.database = p
	}
}

// WithMetrics serves the registry on GET /metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new gateway server.
func New(cfg config.GatewayConfig, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		authLimiter: newAuthRateLimiter(),
		startedAt:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	return s
}

// sameOrigin accepts non-browser clients and browsers on the gateway's own
// host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Publish broadcasts an event to subscribed WebSocket clients. It satisfies
// routing.Publisher.
func (s *Server) Publish(event string, payload any) {
	frame, err := NewEvent(event, payload, s.eventSeq.Add(1))
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("cannot encode event")
		return
	}
	s.clients.Broadcast(frame)
}

// PublishFeedback broadcasts a recorded feedback event. It matches the
// feedback processor's OnRecorded hook.
func (s *Server) PublishFeedback(fb domain.Feedback) {
	s.Publish(EventFeedbackRecorded, fb)
}

var _ routing.Publisher = (*Server)(nil)

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the HTTP handler with routes and middleware installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log)
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Bind == "lan" && !s.auth.Required() {
		s.log.Warn().Msg("gateway is reachable on the LAN without a token")
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.auth.Required()).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		_ = conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		_ = client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake performs the WebSocket authentication handshake.
// Flow: server sends challenge → client sends connect → server validates → sends hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}

	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
			return nil, fmt.Errorf("parsing connect params: %w", err)
		}
	}

	token := ""
	if params.Auth != nil {
		token = params.Auth.Token
	}
	authResult := Authorize(s.auth, token)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", authResult.Reason)
		return nil, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	_ = conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, authResult)
	client.Subscribe(params.Conversations)

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: version.Version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events: []string{
				EventConnectChallenge,
				routing.EventTurnCompleted,
				routing.EventTurnFailed,
				EventFeedbackRecorded,
			},
		},
	}

	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("authMethod", authResult.Method).
		Msg("client authenticated")

	return client, nil
}

// readLoop processes incoming frames from an authenticated client.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else if !errors.Is(err, net.ErrClosed) {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}

		s.dispatch(ctx, client, frame)
	}
}

// dispatch routes a request frame to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		_ = client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}

	handler(&RequestContext{
		Ctx:    ctx,
		Client: client,
		Frame:  frame,
		Server: s,
	})
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	_ = conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{
		Code:    code,
		Message: message,
	}))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
