// Package httpx builds the retrying HTTP clients shared by the outbound
// integrations (LLM API, WhatsApp bridge, LangSmith).
package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/soyeahso/zueira/internal/logging"
	"github.com/soyeahso/zueira/internal/version"
)

// Options configures a client.
type Options struct {
	Timeout      time.Duration            // per attempt; 0 means 30s
	RetryMax     int                      // retries after the first attempt
	RetryWaitMin time.Duration            // 0 means 250ms
	RetryWaitMax time.Duration            // 0 means 5s
	Headers      map[string]string        // added to every request, with a default User-Agent
	CheckRetry   retryablehttp.CheckRetry // nil means retryablehttp.DefaultRetryPolicy
}

// New returns a retryablehttp client logging through log.
func New(opts Options, log *logging.Logger) *retryablehttp.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 250 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 5 * time.Second
	}

	base := cleanhttp.DefaultPooledClient()
	base.Timeout = opts.Timeout
	headers := map[string]string{"User-Agent": version.UserAgent()}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	base.Transport = &headerTransport{base: base.Transport, headers: headers}

	c := retryablehttp.NewClient()
	c.HTTPClient = base
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = opts.RetryWaitMin
	c.RetryWaitMax = opts.RetryWaitMax
	c.Logger = leveledLogger{log: log}
	if opts.CheckRetry != nil {
		c.CheckRetry = opts.CheckRetry
	}
	return c
}

// RetryConnectionErrors retries only when no response arrived. Use it for
// non-idempotent calls where a 5xx may follow a side effect.
func RetryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Standard returns a plain *http.Client backed by a retrying client, for
// SDKs that only accept net/http.
func Standard(opts Options, log *logging.Logger) *http.Client {
	return New(opts, log).StandardClient()
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// leveledLogger adapts logging.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *logging.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { withFields(l.log.Error(), kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { withFields(l.log.Warn(), kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { withFields(l.log.Debug(), kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { withFields(l.log.Trace(), kv).Msg(msg) }

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	return e
}
