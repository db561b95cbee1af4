package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/soyeahso/zueira/internal/config"
)

// Auth methods reported in AuthResult.
const (
	AuthMethodNone  = "none"
	AuthMethodToken = "token"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Token string
}

// Required reports whether clients must present a token.
func (a ResolvedAuth) Required() bool { return a.Token != "" }

// ResolveAuth resolves the gateway token from config, then the
// ZUEIRA_GATEWAY_TOKEN environment variable.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Token: cfg.Token}
	if auth.Token == "" {
		auth.Token = os.Getenv("ZUEIRA_GATEWAY_TOKEN")
	}
	return auth
}

// Authorize checks a presented token against the resolved server auth.
// Without a server token every caller is accepted.
func Authorize(serverAuth ResolvedAuth, token string) AuthResult {
	if !serverAuth.Required() {
		return AuthResult{OK: true, Method: AuthMethodNone}
	}
	if token == "" {
		return AuthResult{OK: false, Reason: "token required"}
	}
	if !safeEqual(token, serverAuth.Token) {
		return AuthResult{OK: false, Reason: "token_mismatch"}
	}
	return AuthResult{OK: true, Method: AuthMethodToken}
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// safeEqual performs a constant-time string comparison.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authRateLimiter tracks failed auth attempts per IP. Entries expire one
// window after the last failure and the least recently failing IP is
// evicted once authRateMaxIPs are tracked.
type authRateLimiter struct {
	mu       sync.Mutex
	failures *expirable.LRU[string, []time.Time]
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		failures: expirable.NewLRU[string, []time.Time](authRateMaxIPs, nil, authRateWindow),
		now:      time.Now,
	}
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent, ok := l.failures.Peek(host)
	if !ok {
		return true
	}
	return len(l.prune(recent)) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent, _ := l.failures.Peek(host)
	l.failures.Add(host, append(l.prune(recent), l.now()))
}

// prune drops failures older than the window.
func (l *authRateLimiter) prune(times []time.Time) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	kept := make([]time.Time, 0, len(times)+1)
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}
