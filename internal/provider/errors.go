package provider

import "fmt"

// UpstreamError reports a non-200 answer from an upstream provider. Body
// carries the upstream response text so the boundary can surface it.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ShapeError reports a 200 response whose JSON carried no generated text at
// any path the provider is known to use. Body is the raw response.
type ShapeError struct {
	Provider string
	Body     string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid response shape from %s: %s", e.Provider, e.Body)
}
