package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"gengate/internal/metrics"
	"gengate/internal/models"
)

const (
	callTimeout     = 120 * time.Second
	dialTimeout     = 10 * time.Second
	keepAlive       = 30 * time.Second
	idleConnTimeout = 90 * time.Second

	contentTypeJSON = "application/json"
	userAgent       = "gengate/0.1"

	// Attribution headers the aggregator uses to identify calling apps.
	aggregatorReferer = "http://localhost:31161"
	aggregatorTitle   = "gengate"

	// Sampling temperature sent with every call; not caller-configurable.
	temperature = 0.7

	maxErrorBody = 64 * 1024
)

// Client performs chat-completion calls against resolved routes. One Client
// is shared by all requests; connection pooling lives in the transport.
type Client struct {
	http    *http.Client
	metrics *metrics.Collector
}

// NewClient constructs a Client around a tuned HTTP transport.
func NewClient(collector *metrics.Collector) *Client {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Client{
		http:    newHTTPClient(callTimeout),
		metrics: collector,
	}
}

// Result is the normalized outcome of one upstream call. Usage is the
// provider-reported accounting object, verbatim.
type Result struct {
	Text  string
	Usage json.RawMessage
}

type chatPayload struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
}

// Call performs one synchronous chat-completion exchange against the route.
// There are no retries; ctx and the client timeout bound the call. Failures
// past the HTTP layer are wrapped as a single provider-call error carrying
// the cause.
func (c *Client) Call(ctx context.Context, route Resolved, messages []models.Message) (*Result, error) {
	payload, err := json.Marshal(chatPayload{
		Model:       route.Model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := route.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	if route.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+route.APIKey)
	}
	if route.Kind == KindAggregator {
		req.Header.Set("HTTP-Referer", aggregatorReferer)
		req.Header.Set("X-Title", aggregatorTitle)
	}

	slog.Debug("calling provider",
		"endpoint", endpoint,
		"provider", route.Name,
		"model", route.Model,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstream(route.Name, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("provider call failed: %w", &UpstreamError{
			Provider:   route.Name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	result, err := extractResult(route, raw)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}
	return result, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
