package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports structured-mode output that did not parse as JSON after
// fence stripping. Text is the cleaned text that failed to parse; it rides
// along in the error detail so callers can see what the model produced.
type ParseError struct {
	Err  error
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON output: %v | content: %s", e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// coerceJSON strips any surrounding code fence and parses the remainder as a
// JSON value, returned in its textual form.
func coerceJSON(text string) (json.RawMessage, error) {
	cleaned := stripCodeFence(text)

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, &ParseError{Err: err, Text: cleaned}
	}
	return json.RawMessage(cleaned), nil
}

// stripCodeFence removes a surrounding fenced code block, the way chat
// models like to wrap JSON: the first line goes if it opens a fence, then
// the last line goes if it closes one.
func stripCodeFence(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	_, rest, found := strings.Cut(text, "\n")
	if !found {
		return ""
	}
	text = rest

	if strings.HasSuffix(text, "```") {
		if i := strings.LastIndex(text, "\n"); i >= 0 {
			text = text[:i]
		}
	}
	return text
}
