// Package gemini is the analysis adapter for Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"samplemind/ai"

	"google.golang.org/genai"
)

// generator is the part of the genai client the adapter calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Adapter struct {
	models generator
	model  string
}

type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

func NewAdapter(ctx context.Context, apiKey string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Adapter{models: client.Models, model: ai.GeminiModel}, nil
}

func (a *Adapter) ID() ai.ProviderID { return ai.ProviderGemini }

func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Capabilities() []ai.Kind { return ai.Kinds }

func (a *Adapter) Analyze(ctx context.Context, req *ai.Request) (*ai.Result, error) {
	prompt, err := ai.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ai.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(0.7)),
		TopP:              genai.Ptr(float32(0.8)),
		MaxOutputTokens:   int32(2048),
		ResponseMIMEType:  "application/json",
	}

	resp, err := a.models.GenerateContent(ctx, a.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return nil, mapError(err)
	}
	return completion(resp, a.model).ToResult(ai.ProviderGemini, req)
}

func completion(resp *genai.GenerateContentResponse, model string) ai.Completion {
	c := ai.Completion{Model: model}
	if resp == nil {
		return c
	}
	c.Text = resp.Text()
	if resp.ModelVersion != "" {
		c.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		c.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return c
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ai.ProviderHTTPError{Provider: ai.ProviderGemini, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return &ai.ProviderHTTPError{Provider: ai.ProviderGemini, Body: err.Error()}
}
