package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"samplemind/ai"
	"samplemind/audio"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{}

func (stubAdapter) ID() ai.ProviderID       { return ai.ProviderGemini }
func (stubAdapter) Model() string           { return "stub-model" }
func (stubAdapter) Capabilities() []ai.Kind { return ai.Kinds }

func (stubAdapter) Analyze(_ context.Context, req *ai.Request) (*ai.Result, error) {
	text := `{"summary": "Warm pad", "confidence_score": 0.9, "production_tips": ["Sidechain the pad"]}`
	return ai.Completion{Text: text, Model: "stub-model", Tokens: 200}.ToResult(ai.ProviderGemini, req)
}

func writeTone(t *testing.T, dir string) string {
	t.Helper()
	const sr = 22050
	samples := make([]float64, sr*2)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/sr)
	}
	path := filepath.Join(dir, "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.WriteWAV(f, samples, sr))
	require.NoError(t, f.Close())
	return path
}

func testRouter(t *testing.T, withProvider bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opts := engine.DefaultOptions()
	opts.Workers = 2
	e, err := engine.New(opts)
	require.NoError(t, err)

	reg := ai.NewRegistry()
	if withProvider {
		require.NoError(t, reg.Register(ai.ProviderConfig{
			Provider:             ai.ProviderGemini,
			Enabled:              true,
			Priority:             1,
			MaxRequestsPerMinute: 60,
			CostPerToken:         0.0001,
		}, stubAdapter{}))
	}
	aiOpts := ai.DefaultOptions()
	aiOpts.Cache = ai.NewMemoryCache(ai.DefaultCacheTTL)
	return newRouter(e, ai.NewOrchestrator(reg, aiOpts), nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	router := testRouter(t, false)
	path := writeTone(t, t.TempDir())

	w := do(t, router, http.MethodPost, "/api/analyze", models.AnalyzeRequest{Path: path, Depth: "standard"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec features.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.OK)
	assert.Equal(t, features.DepthStandard, rec.Depth)
	require.NotNil(t, rec.Rhythmic)
	require.NotNil(t, rec.Tonal)
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	router := testRouter(t, false)
	dir := t.TempDir()
	notAudio := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notAudio, []byte("just text"), 0o644))

	cases := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"missing file", models.AnalyzeRequest{Path: filepath.Join(dir, "nope.wav")}, http.StatusNotFound, "file_not_found"},
		{"not audio", models.AnalyzeRequest{Path: notAudio}, http.StatusUnprocessableEntity, "unsupported_format"},
		{"bad depth", models.AnalyzeRequest{Path: notAudio, Depth: "extreme"}, http.StatusBadRequest, "invalid_request"},
		{"bad body", "not an object", http.StatusBadRequest, "invalid_request"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/analyze", c.body)
			assert.Equal(t, c.status, w.Code)

			var apiErr models.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, c.kind, apiErr.Kind)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestAIAnalyzeEndpoint(t *testing.T) {
	router := testRouter(t, true)
	path := writeTone(t, t.TempDir())

	w := do(t, router, http.MethodPost, "/api/ai/analyze", models.AIAnalyzeRequest{Path: path, Kind: "mixing"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.AIAnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Features)
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, ai.ProviderGemini, resp.Analysis.Provider)
	assert.Equal(t, ai.KindMixing, resp.Analysis.Kind)
	assert.Equal(t, "Warm pad", resp.Analysis.Summary)
	assert.InDelta(t, 0.02, resp.Analysis.Cost, 1e-9)
	assert.Empty(t, resp.Analysis.RawResponse)

	w = do(t, router, http.MethodGet, "/api/providers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status []ai.ProviderStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].Stats.TotalRequests)

	w = do(t, router, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.NotNil(t, stats.AI)
	assert.Equal(t, 1, stats.AI.Succeeded)
	assert.Equal(t, int64(1), stats.Engine.FilesAnalyzed)
}

func TestAIAnalyzeEndpointErrors(t *testing.T) {
	path := writeTone(t, t.TempDir())

	w := do(t, testRouter(t, false), http.MethodPost, "/api/ai/analyze", models.AIAnalyzeRequest{Path: path})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	router := testRouter(t, true)
	w = do(t, router, http.MethodPost, "/api/ai/analyze", models.AIAnalyzeRequest{Path: path, Kind: "poetry"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPost, "/api/ai/analyze", models.AIAnalyzeRequest{Path: path, Provider: "mistral"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareEndpoint(t *testing.T) {
	router := testRouter(t, false)
	path := writeTone(t, t.TempDir())

	w := do(t, router, http.MethodPost, "/api/compare", models.CompareRequest{PathA: path, PathB: path})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.CompareResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1.0, resp.Similarity.Key)
	assert.GreaterOrEqual(t, resp.Similarity.Overall, 0.0)
	assert.LessOrEqual(t, resp.Similarity.Overall, 1.0)
}

func TestErrorKindAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{fmt.Errorf("open: %w", audio.ErrFileNotFound), "file_not_found", http.StatusNotFound},
		{audio.ErrDecode, "decode_error", http.StatusUnprocessableEntity},
		{features.ErrHPSS, "feature_extraction", http.StatusUnprocessableEntity},
		{ai.ErrNoProviderAvailable, "no_provider_available", http.StatusServiceUnavailable},
		{ai.ErrTimeout, "timeout", http.StatusGatewayTimeout},
		{&ai.AllProvidersFailedError{Last: &ai.ProviderHTTPError{Provider: ai.ProviderOpenAI, StatusCode: 500}}, "all_providers_failed", http.StatusBadGateway},
		{fmt.Errorf("analysis: %w", context.Canceled), "cancelled", http.StatusInternalServerError},
		{fmt.Errorf("analysis: %w", context.DeadlineExceeded), "timeout", http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), "internal", http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, errorKind(c.err), c.err.Error())
		assert.Equal(t, c.status, httpStatus(c.err), c.err.Error())
	}
}

func TestCollectPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "drums")
	require.NoError(t, os.Mkdir(sub, 0o755))
	for _, name := range []string{"kick.wav", "snare.FLAC", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(sub, name), nil, 0o644))
	}
	loose := filepath.Join(dir, "loose.bin")

	paths, err := collectPaths([]string{sub, loose})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(sub, "kick.wav"),
		filepath.Join(sub, "snare.FLAC"),
		loose,
	}, paths)
}

func TestDescribeErrorContext(t *testing.T) {
	t.Setenv("SAMPLEMIND_LOG_LEVEL", "info")
	assert.Equal(t, "request cancelled", describeError(fmt.Errorf("load: %w", context.Canceled)))
	assert.Equal(t, "request timed out", describeError(fmt.Errorf("load: %w", context.DeadlineExceeded)))
}
