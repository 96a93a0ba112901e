package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"samplemind/ai"
	"samplemind/audio"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/models"
	"samplemind/similarity"
	"samplemind/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mdobak/go-xerrors"
)

type httpController struct {
	engine       *engine.Engine
	orchestrator *ai.Orchestrator
}

// errorKind names the failure class of err for API clients.
func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrFileNotFound):
		return "file_not_found"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, audio.ErrDecode):
		return "decode_error"
	case errors.Is(err, audio.ErrIO):
		return "io_error"
	case errors.Is(err, features.ErrHPSS), errors.Is(err, features.ErrFeatureExtraction), errors.Is(err, similarity.ErrIncomplete):
		return "feature_extraction"
	case errors.Is(err, ai.ErrInvalidRequest), errors.Is(err, ai.ErrUnknownProvider):
		return "invalid_request"
	case errors.Is(err, ai.ErrNoProviderAvailable):
		return "no_provider_available"
	case errors.Is(err, ai.ErrTimeout):
		return "timeout"
	case errors.Is(err, ai.ErrCancelled):
		return "cancelled"
	case errors.Is(err, ai.ErrAllProvidersFailed):
		return "all_providers_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "internal"
}

func httpStatus(err error) int {
	switch errorKind(err) {
	case "file_not_found":
		return http.StatusNotFound
	case "unsupported_format", "decode_error", "feature_extraction":
		return http.StatusUnprocessableEntity
	case "invalid_request":
		return http.StatusBadRequest
	case "no_provider_available":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	case "all_providers_failed":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *httpController) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		utils.GetLogger().ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()), slog.Any("error", xerrors.New(err)))
	}
	c.JSON(status, models.APIError{Message: describeError(err), Kind: errorKind(err), Detail: err.Error()})
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, models.APIError{Message: message, Kind: "invalid_request", Detail: err.Error()})
}

func (h *httpController) analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	depth, err := features.ParseDepth(req.Depth)
	if err != nil {
		badRequest(c, "invalid depth", err)
		return
	}
	useCache := req.UseCache == nil || *req.UseCache

	rec, err := h.engine.Analyze(c.Request.Context(), req.Path, depth, useCache)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpController) aiAnalyze(c *gin.Context) {
	var req models.AIAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	resp, err := runAIAnalysis(c.Request.Context(), h.engine, h.orchestrator, req, "", nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *httpController) compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	ctx := c.Request.Context()
	a, err := h.engine.Analyze(ctx, req.PathA, features.DepthStandard, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.engine.Analyze(ctx, req.PathB, features.DepthStandard, true)
	if err != nil {
		h.fail(c, err)
		return
	}
	sim, err := similarity.Compare(a, b)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CompareResponse{PathA: req.PathA, PathB: req.PathB, Similarity: sim})
}

func (h *httpController) providers(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Registry().Status())
}

func (h *httpController) stats(c *gin.Context) {
	resp := models.StatsResponse{Engine: h.engine.Stats()}
	if h.orchestrator != nil {
		s := h.orchestrator.Stats()
		resp.AI = &s
	}
	c.JSON(http.StatusOK, resp)
}

// corsConfig allows local development origins plus CORS_ORIGIN when set.
func corsConfig() cors.Config {
	frontendURL := utils.GetEnv("CORS_ORIGIN", "")
	return cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(origin string) bool {
			if frontendURL != "" && origin == frontendURL {
				return true
			}
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:")
		},
	}
}

// newRouter mounts the JSON API and, when socketServer is non-nil, the
// socket.io endpoint.
func newRouter(e *engine.Engine, o *ai.Orchestrator, socketServer http.Handler) *gin.Engine {
	h := &httpController{engine: e, orchestrator: o}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig()))

	api := router.Group("/api")
	api.POST("/analyze", h.analyze)
	api.POST("/compare", h.compare)
	api.GET("/stats", h.stats)
	if o != nil {
		api.POST("/ai/analyze", h.aiAnalyze)
		api.GET("/providers", h.providers)
	}

	if socketServer != nil {
		router.Any("/socket.io/*any", gin.WrapH(socketServer))
	}
	return router
}
