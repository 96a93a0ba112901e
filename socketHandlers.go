package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"samplemind/ai"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/models"
	"samplemind/utils"

	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	engine       *engine.Engine
	orchestrator *ai.Orchestrator
	// timeout bounds one socket request; the orchestrator applies its own
	// request timeout on top.
	timeout time.Duration
}

func newSocketController(e *engine.Engine, o *ai.Orchestrator, timeout time.Duration) *socketController {
	return &socketController{engine: e, orchestrator: o, timeout: timeout}
}

func (c *socketController) emitError(socket socketio.Conn, requestID string, err error) {
	socket.Emit("analysisError", map[string]string{
		"requestId": requestID,
		"message":   describeError(err),
		"kind":      errorKind(err),
	})
}

func (c *socketController) emitProviderStatus(socket socketio.Conn) {
	if c.orchestrator == nil {
		return
	}
	socket.Emit("providerStatus", c.orchestrator.Registry().Status())
}

func (c *socketController) handleAnalyzeFile(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var req models.AnalyzeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		logger.ErrorContext(ctx, "failed to parse analyzeFile payload", slog.Any("error", xerrors.New(err)))
		socket.Emit("analysisError", map[string]string{"requestId": requestID, "message": "invalid payload", "kind": "invalid_request"})
		return
	}
	depth, err := features.ParseDepth(req.Depth)
	if err != nil {
		socket.Emit("analysisError", map[string]string{"requestId": requestID, "message": err.Error(), "kind": "invalid_request"})
		return
	}

	logger.InfoContext(ctx, "analyzeFile received",
		slog.String("socketID", socket.ID()),
		slog.String("requestID", requestID),
		slog.String("path", req.Path),
		slog.String("depth", string(depth)),
	)
	socket.Emit("analysisProgress", models.Progress{RequestID: requestID, Stage: "features", Path: req.Path})

	started := time.Now()
	rec, err := c.engine.Analyze(ctx, req.Path, depth, req.UseCache == nil || *req.UseCache)
	if err != nil {
		logger.WarnContext(ctx, "analyzeFile failed",
			slog.String("requestID", requestID), slog.Any("error", xerrors.New(err)))
		c.emitError(socket, requestID, err)
		return
	}

	logger.InfoContext(ctx, "analyzeFile done",
		slog.String("requestID", requestID),
		slog.Duration("elapsed", time.Since(started)),
	)
	socket.Emit("analysisResult", map[string]any{"requestId": requestID, "features": rec})
}

func (c *socketController) handleAIAnalyze(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var req models.AIAnalyzeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		logger.ErrorContext(ctx, "failed to parse aiAnalyze payload", slog.Any("error", xerrors.New(err)))
		socket.Emit("analysisError", map[string]string{"requestId": requestID, "message": "invalid payload", "kind": "invalid_request"})
		return
	}

	logger.InfoContext(ctx, "aiAnalyze received",
		slog.String("socketID", socket.ID()),
		slog.String("requestID", requestID),
		slog.String("path", req.Path),
		slog.String("kind", req.Kind),
		slog.String("provider", req.Provider),
	)

	resp, err := runAIAnalysis(ctx, c.engine, c.orchestrator, req, requestID, func(stage string) {
		socket.Emit("analysisProgress", models.Progress{RequestID: requestID, Stage: stage, Path: req.Path})
	})
	if err != nil {
		logger.WarnContext(ctx, "aiAnalyze failed",
			slog.String("requestID", requestID), slog.Any("error", xerrors.New(err)))
		c.emitError(socket, requestID, err)
		c.emitProviderStatus(socket)
		return
	}

	socket.Emit("aiResult", resp)
	c.emitProviderStatus(socket)
}

// guarded runs fn on its own goroutine and reports a panic to the client
// instead of taking the server down.
func guarded(socket socketio.Conn, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.GetLogger().Error("panic in socket handler",
					slog.String("handler", name),
					slog.String("socketID", socket.ID()),
					slog.Any("panic", r),
				)
				socket.Emit("analysisError", map[string]string{"message": "internal server error during processing", "kind": "internal"})
			}
		}()
		fn()
	}()
}

func (c *socketController) register(server *socketio.Server) {
	logger := utils.GetLogger()

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		logger.Info("socket connected",
			slog.String("socketID", socket.ID()),
			slog.String("remoteAddr", socket.RemoteAddr().String()),
		)
		c.emitProviderStatus(socket)
		return nil
	})

	server.OnEvent("/", "requestProviderStatus", func(socket socketio.Conn) {
		c.emitProviderStatus(socket)
	})

	server.OnEvent("/", "analyzeFile", func(socket socketio.Conn, msg string) {
		guarded(socket, "analyzeFile", func() { c.handleAnalyzeFile(socket, msg) })
	})

	server.OnEvent("/", "aiAnalyze", func(socket socketio.Conn, msg string) {
		guarded(socket, "aiAnalyze", func() { c.handleAIAnalyze(socket, msg) })
	})

	server.OnError("/", func(socket socketio.Conn, err error) {
		logger.Error("socket error", slog.Any("error", xerrors.New(err)))
	})

	server.OnDisconnect("/", func(socket socketio.Conn, reason string) {
		logger.Info("socket disconnected", slog.String("socketID", socket.ID()), slog.String("reason", reason))
	})
}
