// Package provider resolves model identifiers to upstream routes and
// performs chat-completion calls against them.
package provider

import (
	"errors"
	"fmt"
	"strings"

	"gengate/internal/models"
)

// Provider identities and their fixed endpoints.
const (
	AggregatorName = "openrouter"
	LocalName      = "ollama"

	aggregatorBaseURL   = "https://openrouter.ai/api/v1"
	defaultLocalBaseURL = "http://localhost:11434/v1"
)

// ErrNoBaseURL indicates a route resolved without an upstream base URL.
var ErrNoBaseURL = errors.New("no base url resolved for provider")

// Kind classifies the upstream a model identifier points at.
type Kind int

const (
	// KindAggregator routes through the hosted model aggregator.
	KindAggregator Kind = iota
	// KindLocal routes to a self-hosted inference server.
	KindLocal
	// KindUnknown marks a prefix that names no recognized provider.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindAggregator:
		return "aggregator"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Classify splits a model identifier into provider kind, provider name, and
// the model name the upstream should see. Prefixes are lowercased before
// matching. Identifiers without a prefix classify as the aggregator and pass
// through unchanged.
func Classify(model string) (Kind, string, string) {
	prefix, rest, ok := strings.Cut(model, ":")
	if !ok {
		return KindAggregator, AggregatorName, model
	}

	prefix = strings.ToLower(prefix)
	switch prefix {
	case AggregatorName:
		return KindAggregator, prefix, rest
	case LocalName:
		return KindLocal, prefix, rest
	default:
		return KindUnknown, prefix, rest
	}
}

// Resolved is the upstream route computed for one request. It is derived
// fresh from the model string and the caller's provider settings, never
// cached.
type Resolved struct {
	Kind    Kind
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// Resolve maps a model identifier and the caller's provider settings to an
// upstream route. Unrecognized prefixes collapse to the aggregator; Classify
// surfaces them as KindUnknown so that fallback is a policy applied here, in
// one place, rather than a default branch. On error the returned route still
// carries the provider identity, for logging and metrics labels.
func Resolve(model string, settings map[string]models.ProviderSettings) (Resolved, error) {
	kind, name, actual := Classify(model)
	if kind == KindUnknown {
		kind, name = KindAggregator, AggregatorName
	}

	route := Resolved{Kind: kind, Name: name, Model: actual}
	switch kind {
	case KindLocal:
		route.BaseURL = defaultLocalBaseURL
		if s, ok := settings[LocalName]; ok && s.BaseURL != "" {
			route.BaseURL = strings.TrimRight(s.BaseURL, "/")
		}
	default:
		route.BaseURL = aggregatorBaseURL
		route.APIKey = settings[AggregatorName].APIKey
	}

	if route.BaseURL == "" {
		return route, fmt.Errorf("%w: %s", ErrNoBaseURL, route.Name)
	}
	return route, nil
}
