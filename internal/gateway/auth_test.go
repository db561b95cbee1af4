package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/zueira/internal/config"
)

func TestResolveAuth(t *testing.T) {
	t.Setenv("ZUEIRA_GATEWAY_TOKEN", "from-env")

	assert.Equal(t, "from-config", ResolveAuth(config.GatewayAuth{Token: "from-config"}).Token)
	assert.Equal(t, "from-env", ResolveAuth(config.GatewayAuth{}).Token)
}

func TestResolveAuth_Empty(t *testing.T) {
	t.Setenv("ZUEIRA_GATEWAY_TOKEN", "")

	auth := ResolveAuth(config.GatewayAuth{})
	assert.False(t, auth.Required())
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name       string
		server     ResolvedAuth
		token      string
		wantOK     bool
		wantMethod string
		wantReason string
	}{
		{"open gateway", ResolvedAuth{}, "", true, AuthMethodNone, ""},
		{"open gateway ignores token", ResolvedAuth{}, "whatever", true, AuthMethodNone, ""},
		{"valid token", ResolvedAuth{Token: "s3cret"}, "s3cret", true, AuthMethodToken, ""},
		{"missing token", ResolvedAuth{Token: "s3cret"}, "", false, "", "token required"},
		{"wrong token", ResolvedAuth{Token: "s3cret"}, "s3cre", false, "", "token_mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.token)
			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(r))
		})
	}
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.True(t, safeEqual("", ""))
}

func TestAuthRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newAuthRateLimiter()
	l.now = func() time.Time { return now }

	const addr = "10.0.0.1:5555"
	for i := 0; i < authRateMaxFails; i++ {
		assert.True(t, l.allow(addr), "attempt %d", i)
		l.recordFailure(addr)
	}
	assert.False(t, l.allow(addr))
	assert.False(t, l.allow("10.0.0.1:6666"), "limit applies per host")
	assert.True(t, l.allow("10.0.0.2:5555"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, l.allow(addr), "failures outside the window are forgotten")
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "10.0.0.1", hostOf("10.0.0.1:80"))
	assert.Equal(t, "::1", hostOf("[::1]:80"))
	assert.Equal(t, "pipe", hostOf("pipe"))
}
