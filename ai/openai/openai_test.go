package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"samplemind/ai"
	"samplemind/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() *ai.Request {
	return &ai.Request{
		Kind: ai.KindQuick,
		Features: &features.Record{
			Depth:    features.DepthBasic,
			Basic:    &features.Basic{Duration: 3.5},
			Rhythmic: &features.Rhythmic{Tempo: 90, TimeSignature: "4/4"},
			Tonal:    &features.Tonal{Key: "D", Mode: "minor"},
		},
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	var got struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-2024-08-06",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"summary": "Laid-back hip hop", "creativity_score": 0.4}`,
				},
			}},
			"usage": map[string]any{"prompt_tokens": 400, "completion_tokens": 100, "total_tokens": 500},
		})
	}))
	defer srv.Close()

	a := NewAdapter("test-key", srv.URL+"/v1")
	res, err := a.Analyze(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, ai.OpenAIModel, got.Model)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "- Tempo: 90.0 BPM")

	assert.Equal(t, ai.ProviderOpenAI, res.Provider)
	assert.Equal(t, "Laid-back hip hop", res.Summary)
	assert.Equal(t, 500, res.TokensUsed)
	assert.Equal(t, "gpt-4o-2024-08-06", res.Model)
	assert.InDelta(t, 0.4, res.CreativityScore, 1e-12)
}

func TestAnalyzeHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewAdapter("test-key", srv.URL+"/v1").Analyze(context.Background(), request())

	var httpErr *ai.ProviderHTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.True(t, ai.IsFailoverEligible(err))
}

func TestAnalyzeNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "x", "choices": [], "usage": {"total_tokens": 1}}`))
	}))
	defer srv.Close()

	_, err := NewAdapter("test-key", srv.URL+"/v1").Analyze(context.Background(), request())
	assert.ErrorIs(t, err, ai.ErrParse)
}
