package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/zueira/internal/domain"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Turn(StatusOK, 2*time.Second)
	m.Turn(StatusOK, time.Second)
	m.Turn(StatusError, time.Second)
	m.Ignored("media")
	m.Feedback(domain.PolarityPositive)
	m.Feedback(domain.PolarityNegative)
	m.Feedback(domain.PolarityPositive)
	m.ToolItem()
	m.HistoryError("save")
	m.SendError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues(StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues(StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ignored.WithLabelValues("media")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedback.WithLabelValues("positive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedback.WithLabelValues("negative")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolItems))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.historyErrs.WithLabelValues("save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.turnDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Turn(StatusOK, time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `zueira_turns_total{status="ok"} 1`)
	assert.Contains(t, string(body), "zueira_turn_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Turn(StatusOK, time.Second)
	m.Ignored("x")
	m.Feedback(domain.PolarityPositive)
	m.ToolItem()
	m.HistoryError("load")
	m.SendError()
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
