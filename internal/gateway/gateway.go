// Package gateway orchestrates generation requests end to end: mode
// derivation, message building, the provider call, and output coercion.
package gateway

import (
	"context"
	"errors"

	"gengate/internal/models"
	"gengate/internal/provider"
)

// ErrSchemaRequired indicates structured output was requested without a
// schema. The check runs before any upstream call.
var ErrSchemaRequired = errors.New("schema is required for structured output")

const (
	systemPrompt = "You are a helpful assistant."

	schemaInstruction   = "\nYou must respond with a valid JSON object matching this schema: "
	jsonOnlyInstruction = "\nRespond ONLY with the JSON."
)

// Caller performs one chat-completion exchange against a resolved route.
type Caller interface {
	Call(ctx context.Context, route provider.Resolved, messages []models.Message) (*provider.Result, error)
}

// Service handles generation requests.
type Service struct {
	client Caller
}

// New constructs a Service backed by the provided caller.
func New(client Caller) *Service {
	return &Service{client: client}
}

// Generate runs one generation request. The returned route identifies the
// upstream the request targeted, on failure as well, so callers can label
// logs and metrics.
func (s *Service) Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, provider.Resolved, error) {
	structured := req.Structured()
	route, rerr := provider.Resolve(req.Model, req.Providers)

	if structured && req.Schema == "" {
		return nil, route, ErrSchemaRequired
	}
	if rerr != nil {
		return nil, route, rerr
	}

	result, err := s.client.Call(ctx, route, buildMessages(req, structured))
	if err != nil {
		return nil, route, err
	}

	var data any = result.Text
	if structured {
		parsed, err := coerceJSON(result.Text)
		if err != nil {
			return nil, route, err
		}
		data = parsed
	}

	return &models.GenerateResponse{
		Status: models.StatusSuccess,
		Data:   data,
		Usage:  result.Usage,
	}, route, nil
}

// buildMessages assembles the system/user exchange, folding the schema
// instructions in when structured output was requested.
func buildMessages(req *models.GenerateRequest, structured bool) []models.Message {
	system := systemPrompt
	user := req.Prompt
	if structured {
		system += schemaInstruction + req.Schema
		user += jsonOnlyInstruction
	}

	return []models.Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: user},
	}
}
