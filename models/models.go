package models

import (
	"samplemind/ai"
	"samplemind/engine"
	"samplemind/features"
	"samplemind/similarity"
)

// AnalyzeRequest asks for the feature record of a file on the server.
type AnalyzeRequest struct {
	Path     string `json:"path"`
	Depth    string `json:"depth,omitempty"`
	UseCache *bool  `json:"useCache,omitempty"`
}

// AIAnalyzeRequest asks for an LLM analysis of a file's features.
type AIAnalyzeRequest struct {
	Path        string         `json:"path"`
	Depth       string         `json:"depth,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Provider    string         `json:"provider,omitempty"`
	UserContext map[string]any `json:"userContext,omitempty"`
	BypassCache bool           `json:"bypassCache,omitempty"`
}

type CompareRequest struct {
	PathA string `json:"pathA"`
	PathB string `json:"pathB"`
}

type APIError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type AIAnalyzeResponse struct {
	Features *features.Record `json:"features"`
	Analysis *ai.Result       `json:"analysis"`
}

type CompareResponse struct {
	PathA      string                `json:"pathA"`
	PathB      string                `json:"pathB"`
	Similarity similarity.Similarity `json:"similarity"`
}

type StatsResponse struct {
	Engine engine.Stats `json:"engine"`
	AI     *ai.Stats    `json:"ai,omitempty"`
}

// Progress is emitted while a socket request is being served.
type Progress struct {
	RequestID string `json:"requestId"`
	Stage     string `json:"stage"`
	Path      string `json:"path,omitempty"`
}
