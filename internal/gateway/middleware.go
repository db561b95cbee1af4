package gateway

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/zueira/internal/logging"
)

// withMiddleware wraps a handler with the standard middleware chain.
func withMiddleware(handler http.Handler, log *logging.Logger) http.Handler {
	h := handler
	h = requestIDMiddleware(h)
	h = loggingMiddleware(h, log)
	return h
}

// loggingMiddleware logs each HTTP request.
func loggingMiddleware(next http.Handler, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("requestId", w.Header().Get("X-Request-ID")).
			Msg("http request")
	})
}

// requestIDMiddleware adds a unique request ID to each request/response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

// requireToken rejects requests without a valid bearer token when the
// gateway has one configured.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Required() {
			next(w, r)
			return
		}
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "too many failed auth attempts")
			return
		}
		if res := Authorize(s.auth, bearerToken(r)); !res.OK {
			s.authLimiter.recordFailure(r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="zueira"`)
			writeError(w, http.StatusUnauthorized, res.Reason)
			return
		}
		next(w, r)
	}
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware chain.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
