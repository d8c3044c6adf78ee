package models

import "encoding/json"

// Output format values accepted in GenerateRequest.ResponseFormat.
const (
	FormatText = "text"
	FormatDict = "dict"
)

// Chat message roles used when building the upstream exchange.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single entry in the chat exchange sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderSettings carries the caller-supplied configuration for one provider.
// Credentials travel with each request; the service never stores them.
type ProviderSettings struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// GenerateRequest is the body of POST /generate.
//
// Model is either "<provider>:<model-name>" or a bare model name, in which
// case the aggregator provider is implied. Schema, when present, switches the
// request into structured mode and must describe the expected JSON output.
// Tag is pass-through metadata; it never influences routing or generation.
type GenerateRequest struct {
	Model          string                      `json:"model" validate:"required"`
	Prompt         string                      `json:"prompt" validate:"required"`
	ResponseFormat string                      `json:"response_format,omitempty" validate:"omitempty,oneof=text dict"`
	Schema         string                      `json:"schema,omitempty"`
	Tag            string                      `json:"tag,omitempty"`
	Providers      map[string]ProviderSettings `json:"providers,omitempty"`
}

// Structured reports whether the request asks for JSON output. A present
// schema implies structured mode; an explicit "dict" format requests it.
func (r *GenerateRequest) Structured() bool {
	return r.Schema != "" || r.ResponseFormat == FormatDict
}

// GenerateResponse is the uniform success envelope. Data holds the raw
// generated text in text mode and the parsed JSON value in structured mode.
// Usage is the provider-reported accounting object, passed through verbatim.
type GenerateResponse struct {
	Status string          `json:"status"`
	Data   any             `json:"data"`
	Usage  json.RawMessage `json:"usage"`
}

// StatusSuccess is the Status value of every successful envelope.
const StatusSuccess = "success"

// EmptyUsage is the usage object reported when the provider omitted one.
func EmptyUsage() json.RawMessage {
	return json.RawMessage("{}")
}
