package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gengate/internal/metrics"
	"gengate/internal/models"
)

type capturedRequest struct {
	path   string
	header http.Header
	body   []byte
}

// newUpstream starts a counting stub that answers every request with the
// given status and body, recording the last request it saw.
func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, *capturedRequest) {
	t.Helper()

	var calls atomic.Int32
	captured := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		captured.path = r.URL.Path
		captured.header = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, &calls, captured
}

func testMessages() []models.Message {
	return []models.Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "say hello"},
	}
}

func TestClientCallAggregator(t *testing.T) {
	srv, calls, captured := newUpstream(t, http.StatusOK,
		`{"choices":[{"message":{"content":"hello"}}],"usage":{"total_tokens":5}}`)

	route := Resolved{
		Kind:    KindAggregator,
		Name:    AggregatorName,
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "openai/gpt-4o",
	}

	client := NewClient(metrics.NewCollector())
	res, err := client.Call(context.Background(), route, testMessages())
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Text)
	assert.JSONEq(t, `{"total_tokens":5}`, string(res.Usage))
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "/chat/completions", captured.path)
	assert.Equal(t, "application/json", captured.header.Get("Content-Type"))
	assert.Equal(t, "Bearer sk-test", captured.header.Get("Authorization"))
	assert.NotEmpty(t, captured.header.Get("HTTP-Referer"))
	assert.NotEmpty(t, captured.header.Get("X-Title"))

	assert.JSONEq(t, `{
		"model": "openai/gpt-4o",
		"messages": [
			{"role": "system", "content": "You are a helpful assistant."},
			{"role": "user", "content": "say hello"}
		],
		"temperature": 0.7
	}`, string(captured.body))
}

func TestClientCallLocalOmitsAuthHeaders(t *testing.T) {
	srv, _, captured := newUpstream(t, http.StatusOK,
		`{"choices":[{"message":{"content":"hi"}}]}`)

	route := Resolved{Kind: KindLocal, Name: LocalName, BaseURL: srv.URL, Model: "llama3"}

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(context.Background(), route, testMessages())
	require.NoError(t, err)

	assert.Empty(t, captured.header.Get("Authorization"))
	assert.Empty(t, captured.header.Get("HTTP-Referer"))
	assert.Empty(t, captured.header.Get("X-Title"))
}

func TestClientCallUpstreamError(t *testing.T) {
	srv, _, _ := newUpstream(t, http.StatusServiceUnavailable, "rate limited")

	route := Resolved{Kind: KindAggregator, Name: AggregatorName, BaseURL: srv.URL, Model: "m"}

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(context.Background(), route, testMessages())
	require.Error(t, err)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
	assert.Equal(t, "rate limited", upstreamErr.Body)

	assert.Contains(t, err.Error(), "provider call failed")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClientCallNon200IsError(t *testing.T) {
	srv, _, _ := newUpstream(t, http.StatusCreated,
		`{"choices":[{"message":{"content":"hello"}}]}`)

	route := Resolved{Kind: KindAggregator, Name: AggregatorName, BaseURL: srv.URL, Model: "m"}

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(context.Background(), route, testMessages())

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusCreated, upstreamErr.StatusCode)
}

func TestClientCallShapeError(t *testing.T) {
	srv, _, _ := newUpstream(t, http.StatusOK, `{"ok":true}`)

	route := Resolved{Kind: KindAggregator, Name: AggregatorName, BaseURL: srv.URL, Model: "m"}

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(context.Background(), route, testMessages())

	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Contains(t, err.Error(), `{"ok":true}`)
	assert.Contains(t, err.Error(), "provider call failed")
}

func TestClientCallDecodeError(t *testing.T) {
	srv, _, _ := newUpstream(t, http.StatusOK, "not json")

	route := Resolved{Kind: KindLocal, Name: LocalName, BaseURL: srv.URL, Model: "m"}

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(context.Background(), route, testMessages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider call failed")
	assert.Contains(t, err.Error(), "decode provider response")
}

func TestClientCallCancelledContext(t *testing.T) {
	srv, calls, _ := newUpstream(t, http.StatusOK, `{}`)

	route := Resolved{Kind: KindLocal, Name: LocalName, BaseURL: srv.URL, Model: "m"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(metrics.NewCollector())
	_, err := client.Call(ctx, route, testMessages())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "provider call failed")
	assert.Equal(t, int32(0), calls.Load())
}
