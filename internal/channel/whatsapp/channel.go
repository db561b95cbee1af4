// Package whatsapp implements the WhatsApp channel on top of an external
// WhatsApp Web bridge. The bridge owns pairing and the account session; this
// package consumes its event stream and calls its HTTP API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/httpx"
	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/version"
)

// ChannelID identifies this channel.
const ChannelID = "whatsapp"

// APIKeyHeader carries the optional bridge API key.
const APIKeyHeader = "x-bridge-api-key"

// maxMessageLen bounds one outbound WhatsApp message; longer replies are
// split at line boundaries.
const maxMessageLen = 4000

// Config configures the bridge connection.
type Config struct {
	BridgeURL    string
	APIKey       string
	ReconnectMin time.Duration // 0 means 1s
	ReconnectMax time.Duration // 0 means 30s
}

// Channel implements domain.Channel for WhatsApp.
type Channel struct {
	cfg    Config
	base   *url.URL
	client *retryablehttp.Client
	sender *retryablehttp.Client
	dialer *websocket.Dialer
	log    *logging.Logger

	mu        sync.RWMutex
	handler   func(msg domain.InboundMessage)
	running   bool
	connected bool
	lastErr   string
	conn      *websocket.Conn
	cancel    context.CancelFunc
}

// New creates a WhatsApp channel for the bridge at cfg.BridgeURL.
func New(cfg Config, log *logging.Logger) (*Channel, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BridgeURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("whatsapp: invalid bridge url %q", cfg.BridgeURL)
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}

	l := log.Sub("whatsapp")
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers[APIKeyHeader] = cfg.APIKey
	}

	return &Channel{
		cfg:    cfg,
		base:   base,
		client: httpx.New(httpx.Options{Timeout: 15 * time.Second, RetryMax: 3, Headers: headers}, l),
		sender: httpx.New(httpx.Options{
			Timeout:    15 * time.Second,
			RetryMax:   3,
			Headers:    headers,
			CheckRetry: httpx.RetryConnectionErrors,
		}, l),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:    l,
	}, nil
}

func (c *Channel) ID() string { return ChannelID }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: ChannelID,
		Connected: c.connected,
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start consumes the bridge event stream until ctx is done or Stop is
// called, reconnecting with exponential backoff.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.running = true
	c.lastErr = ""
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.running = false
		c.connected = false
		c.mu.Unlock()
	}()

	c.log.Info().Str("bridge", c.base.String()).Msg("connecting to WhatsApp bridge")

	backoff := c.cfg.ReconnectMin
	for {
		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = c.cfg.ReconnectMin
		}

		c.setError(err)
		c.log.Warn().Err(err).Dur("retryIn", backoff).Msg("bridge event stream lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.ReconnectMax)
	}
}

// consume dials the event stream and dispatches events until it fails.
// It reports whether the connection was established.
func (c *Channel) consume(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if c.cfg.APIKey != "" {
		header.Set(APIKeyHeader, c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.eventsURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial events: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastErr = ""
	c.mu.Unlock()
	c.log.Info().Msg("connected to WhatsApp bridge")

	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read event: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn().Err(err).Msg("ignoring malformed bridge event")
		return
	}
	if ev.Type != "" && ev.Type != eventMessage {
		c.log.Debug().Str("type", ev.Type).Msg("ignoring bridge event")
		return
	}
	if ev.ChatID == "" {
		c.log.Warn().Str("id", ev.ID).Msg("ignoring bridge message without chat id")
		return
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return
	}
	h(ev.inbound())
}

// Stop ends the event stream.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.log.Info().Msg("disconnecting from WhatsApp bridge")
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"),
			time.Now().Add(time.Second))
	}
	return nil
}

// Send delivers a text message, split into several when it is long.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.ConversationID == "" {
		return errors.New("whatsapp: no chat id specified")
	}
	for _, chunk := range splitMessage(msg.Text, maxMessageLen) {
		if err := c.post(ctx, c.sender, "/send", sendRequest{ChatID: msg.ConversationID, Text: chunk, QuotedID: msg.ReplyToID}); err != nil {
			return err
		}
	}
	c.log.Debug().Str("chatId", msg.ConversationID).Int("len", len(msg.Text)).Msg("sent WhatsApp message")
	return nil
}

// SendTyping shows the typing indicator in a chat.
func (c *Channel) SendTyping(ctx context.Context, conversationID string) error {
	return c.post(ctx, c.client, "/typing", typingRequest{ChatID: conversationID})
}

// Health asks the bridge whether its WhatsApp session is ready.
func (c *Channel) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp health: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("whatsapp health: %w", err)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("whatsapp health: decode: %w", err)
	}
	return &hs, nil
}

// post sends body as JSON through client. /send uses a client that does not
// retry once the bridge has answered, so a 5xx never duplicates a message.
func (c *Channel) post(ctx context.Context, client *retryablehttp.Client, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("whatsapp %s: %w", path, err)
	}
	return nil
}

func (c *Channel) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Channel) eventsURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	return u.String()
}

func (c *Channel) setError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

// splitMessage breaks text into chunks of at most maxLen runes, preferring
// line boundaries.
func splitMessage(text string, maxLen int) []string {
	if len([]rune(text)) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, string(cur))
			cur = cur[:0]
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if len(cur)+len(r) > maxLen {
			flush()
		}
		for len(r) > maxLen {
			chunks = append(chunks, string(r[:maxLen]))
			r = r[maxLen:]
		}
		cur = append(cur, r...)
	}
	flush()
	return chunks
}
