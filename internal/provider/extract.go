package provider

import (
	"encoding/json"
	"fmt"

	"gengate/internal/models"
)

// chatCompletion covers the response shapes both upstreams produce. The
// aggregator answers with the standard chat-completion shape; some local
// inference server versions put the message at the top level instead.
type chatCompletion struct {
	Choices []chatChoice    `json:"choices"`
	Message *chatMessage    `json:"message"`
	Usage   json.RawMessage `json:"usage"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	Content string `json:"content"`
}

// extractResult decodes a 200 response body and pulls out the generated text
// using the extraction step for the route's kind, plus the verbatim usage
// object.
func extractResult(route Resolved, body []byte) (*Result, error) {
	var resp chatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	text, ok := textFor(route.Kind)(resp)
	if !ok {
		return nil, &ShapeError{Provider: route.Name, Body: string(body)}
	}

	usage := resp.Usage
	if len(usage) == 0 {
		usage = models.EmptyUsage()
	}
	return &Result{Text: text, Usage: usage}, nil
}

// textFor selects the extraction step for a provider kind.
func textFor(kind Kind) func(chatCompletion) (string, bool) {
	if kind == KindLocal {
		return localText
	}
	return aggregatorText
}

// aggregatorText reads the standard chat-completion shape.
func aggregatorText(resp chatCompletion) (string, bool) {
	if len(resp.Choices) == 0 {
		return "", false
	}
	return resp.Choices[0].Message.Content, true
}

// localText accepts the standard shape, then the top-level message shape.
func localText(resp chatCompletion) (string, bool) {
	if text, ok := aggregatorText(resp); ok {
		return text, true
	}
	if resp.Message == nil {
		return "", false
	}
	return resp.Message.Content, true
}
