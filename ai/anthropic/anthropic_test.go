package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"samplemind/ai"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() *ai.Request {
	return &ai.Request{
		Kind:        ai.KindCoaching,
		UserContext: map[string]any{"daw": "FL Studio 21"},
		Features: &features.Record{
			Depth:    features.DepthStandard,
			Rhythmic: &features.Rhythmic{Tempo: 140, TimeSignature: "4/4"},
			Tonal:    &features.Tonal{Key: "G", Mode: "minor"},
		},
	}
}

type sentRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	var got sentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "Here you go:\n` + "```json" + `\n{\"summary\": \"Dark trap\", \"fl_studio_recommendations\": [\"Use Fruity Limiter on the 808\"]}\n` + "```" + `"}],
			"usage": {"input_tokens": 700, "output_tokens": 300}
		}`))
	}))
	defer srv.Close()

	res, err := NewAdapter("test-key", srv.URL).Analyze(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, ai.AnthropicModel, got.Model)
	assert.Equal(t, maxTokens, got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, ai.SystemPrompt, got.System[0].Text)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 1)
	assert.Contains(t, got.Messages[0].Content[0].Text, "**Task: Production Coaching**")
	assert.Contains(t, got.Messages[0].Content[0].Text, "FL Studio 21")

	assert.Equal(t, ai.ProviderAnthropic, res.Provider)
	assert.Equal(t, "Dark trap", res.Summary)
	assert.Equal(t, []string{"Use Fruity Limiter on the 808"}, res.FLStudioRecommendations)
	assert.Equal(t, 1000, res.TokensUsed)
	assert.Equal(t, ai.AnthropicModel, res.Model)
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`, ai.ErrProviderHTTP},
		{"overloaded", 529, `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`, ai.ErrProviderHTTP},
		{"garbage body", http.StatusOK, `not json`, ai.ErrParse},
		{"empty content", http.StatusOK, `{"content": [], "usage": {}}`, ai.ErrParse},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer srv.Close()

			_, err := NewAdapter("k", srv.URL).Analyze(context.Background(), request())
			assert.ErrorIs(t, err, c.target)
			var httpErr *ai.ProviderHTTPError
			if errors.As(err, &httpErr) {
				assert.Equal(t, c.status, httpErr.StatusCode)
			}
			assert.True(t, ai.IsFailoverEligible(err))
		})
	}
}

func TestAnalyzeHonoursContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewAdapter("k", srv.URL).Analyze(ctx, request())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyzeUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAdapter("k", url).Analyze(context.Background(), request())
	var httpErr *ai.ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Zero(t, httpErr.StatusCode)
}
