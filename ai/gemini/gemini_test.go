package gemini

import (
	"context"
	"errors"
	"testing"

	"samplemind/ai"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func request() *ai.Request {
	return &ai.Request{
		Kind: ai.KindGenre,
		Features: &features.Record{
			Depth:    features.DepthBasic,
			Rhythmic: &features.Rhythmic{Tempo: 128, TimeSignature: "4/4"},
			Tonal:    &features.Tonal{Key: "F#", Mode: "minor"},
		},
	}
}

func reply(text string, tokens int32) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: tokens},
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	fake := &fakeModels{resp: reply(`{"summary": "Driving techno", "production_tips": ["Layer the kick"], "confidence_score": 0.7}`, 321)}
	a := &Adapter{models: fake, model: ai.GeminiModel}

	res, err := a.Analyze(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, ai.GeminiModel, fake.model)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	assert.Contains(t, fake.prompt, "- Key: F# minor")
	assert.Contains(t, fake.prompt, "**Task: Genre Classification**")

	assert.Equal(t, ai.ProviderGemini, res.Provider)
	assert.Equal(t, "Driving techno", res.Summary)
	assert.Equal(t, []string{"Layer the kick"}, res.ProductionTips)
	assert.Equal(t, 321, res.TokensUsed)
	assert.InDelta(t, 0.7, res.Confidence, 1e-12)
	assert.Equal(t, ai.GeminiModel, res.Model)
}

func TestAnalyzeMapsAPIErrors(t *testing.T) {
	t.Parallel()

	a := &Adapter{models: &fakeModels{err: genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}}, model: ai.GeminiModel}
	_, err := a.Analyze(context.Background(), request())

	var httpErr *ai.ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 429, httpErr.StatusCode)
	assert.True(t, ai.IsFailoverEligible(err))

	a.models = &fakeModels{err: errors.New("connection reset")}
	_, err = a.Analyze(context.Background(), request())
	assert.ErrorIs(t, err, ai.ErrProviderHTTP)

	a.models = &fakeModels{err: context.DeadlineExceeded}
	_, err = a.Analyze(context.Background(), request())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyzeEmptyReplyIsParseError(t *testing.T) {
	t.Parallel()

	a := &Adapter{models: &fakeModels{resp: reply("", 3)}, model: ai.GeminiModel}
	_, err := a.Analyze(context.Background(), request())
	assert.ErrorIs(t, err, ai.ErrParse)
}

func TestNewAdapterRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewAdapter(context.Background(), "")
	assert.Error(t, err)
}
