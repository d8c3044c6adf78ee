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
)

func TestRecordRequest(t *testing.T) {
	c := NewCollector()

	c.RecordRequest("openrouter", "openai/gpt-4o", "success", 2*time.Second)
	c.RecordRequest("openrouter", "openai/gpt-4o", "success", 3*time.Second)
	c.RecordRequest("ollama", "llama3", "error", time.Second)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("openrouter", "openai/gpt-4o", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.requestsTotal.WithLabelValues("ollama", "llama3", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.requestDuration, "gengate_request_duration_seconds"))
}

func TestRecordUpstream(t *testing.T) {
	c := NewCollector()

	c.RecordUpstream("ollama", 200)
	c.RecordUpstream("ollama", 503)
	c.RecordUpstream("ollama", 503)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.upstreamRequests.WithLabelValues("ollama", "200")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.upstreamRequests.WithLabelValues("ollama", "503")))
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("openrouter", "openai/gpt-4o", "success", time.Second)
	c.RecordUpstream("openrouter", 200)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "gengate_requests_total")
	assert.Contains(t, string(body), "gengate_request_duration_seconds")
	assert.Contains(t, string(body), "gengate_upstream_requests_total")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.RecordUpstream("ollama", 200)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.upstreamRequests.WithLabelValues("ollama", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.upstreamRequests.WithLabelValues("ollama", "200")))
}
