// Package anthropic is the analysis adapter for Claude models.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"samplemind/ai"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxTokens = 2000

type Adapter struct {
	client anthropic.Client
	model  string
}

// NewAdapter builds an adapter for apiKey. A non-empty baseURL replaces the
// public endpoint. Retries are left to the orchestrator's failover.
func NewAdapter(apiKey, baseURL string) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(60 * time.Second),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Adapter{client: anthropic.NewClient(opts...), model: ai.AnthropicModel}
}

func (a *Adapter) ID() ai.ProviderID { return ai.ProviderAnthropic }

func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Capabilities() []ai.Kind { return ai.Kinds }

// Analyze sends one analysis prompt and maps the reply into a Result.
func (a *Adapter) Analyze(ctx context.Context, req *ai.Request) (*ai.Result, error) {
	prompt, err := ai.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		System:      []anthropic.TextBlockParam{{Text: ai.SystemPrompt}},
		Temperature: anthropic.Float(0.7),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, mapError(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	model := string(msg.Model)
	if model == "" {
		model = a.model
	}
	return ai.Completion{
		Text:   text.String(),
		Model:  model,
		Tokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}.ToResult(ai.ProviderAnthropic, req)
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ai.ProviderHTTPError{Provider: ai.ProviderAnthropic, StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ai.ProviderHTTPError{Provider: ai.ProviderAnthropic, Body: err.Error()}
	}
	// Anything else is a body the client could not decode.
	return &ai.ParseError{Provider: ai.ProviderAnthropic, Reason: fmt.Sprintf("failed to decode response: %v", err)}
}
