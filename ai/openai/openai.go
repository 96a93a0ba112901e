// Package openai is the analysis adapter for OpenAI chat models.
package openai

import (
	"context"
	"errors"

	"samplemind/ai"

	openai "github.com/sashabaranov/go-openai"
)

type Adapter struct {
	client *openai.Client
	model  string
}

// NewAdapter builds an adapter for apiKey. A non-empty baseURL replaces the
// public endpoint.
func NewAdapter(apiKey, baseURL string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Adapter{client: openai.NewClientWithConfig(cfg), model: ai.OpenAIModel}
}

func (a *Adapter) ID() ai.ProviderID { return ai.ProviderOpenAI }

func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Capabilities() []ai.Kind { return ai.Kinds }

func (a *Adapter) Analyze(ctx context.Context, req *ai.Request) (*ai.Result, error) {
	prompt, err := ai.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ai.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ai.ParseError{Provider: ai.ProviderOpenAI, Reason: "no choices in response"}
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return ai.Completion{
		Text:   resp.Choices[0].Message.Content,
		Model:  model,
		Tokens: resp.Usage.TotalTokens,
	}.ToResult(ai.ProviderOpenAI, req)
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ai.ProviderHTTPError{Provider: ai.ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ai.ProviderHTTPError{Provider: ai.ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}
	return &ai.ProviderHTTPError{Provider: ai.ProviderOpenAI, Body: err.Error()}
}
