package summarize

import (
	"context"
	stderrors "errors"

	"google.golang.org/genai"
)

// Request is one structured generation call.
type Request struct {
	Model  string
	Prompt string
	Schema *genai.Schema

	// ThinkingBudget is sent only when positive.
	ThinkingBudget int
}

// Generator performs a single round trip and returns the raw response text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError carries the HTTP status reported by the provider.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
}

// NewGemini creates a Gemini API client for apiKey.
func NewGemini(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{client: client}, nil
}

// Client exposes the underlying SDK client so the live session can share it.
func (g *GeminiGenerator) Client() *genai.Client {
	return g.client
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}
	if req.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(req.ThinkingBudget)),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if stderrors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.Code, Err: err}
		}
		return "", err
	}
	return resp.Text(), nil
}
