package ai

import (
	"fmt"
	"math"
	"strings"

	"samplemind/features"
)

// ProviderID names one LLM backend.
type ProviderID string

const (
	ProviderGemini    ProviderID = "gemini"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
)

// Providers lists every known provider.
var Providers = []ProviderID{ProviderGemini, ProviderAnthropic, ProviderOpenAI}

var providerAliases = map[string]ProviderID{
	"gemini":    ProviderGemini,
	"google":    ProviderGemini,
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"openai":    ProviderOpenAI,
	"gpt":       ProviderOpenAI,
}

// ParseProvider maps a provider name or alias onto a ProviderID. The empty
// name yields the empty ID, meaning no preference.
func ParseProvider(name string) (ProviderID, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", nil
	}
	if id, ok := providerAliases[n]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// Kind is the question put to a provider about a feature record.
type Kind string

const (
	KindComprehensive  Kind = "comprehensive"
	KindCoaching       Kind = "coaching"
	KindCreative       Kind = "creative"
	KindGenre          Kind = "genre"
	KindHarmonic       Kind = "harmonic"
	KindRhythmic       Kind = "rhythmic"
	KindMixing         Kind = "mixing"
	KindArrangement    Kind = "arrangement"
	KindQuick          Kind = "quick"
	KindDAWIntegration Kind = "daw_integration"
	KindLyrics         Kind = "lyrics"
)

// Kinds lists every analysis kind.
var Kinds = []Kind{
	KindComprehensive, KindCoaching, KindCreative, KindGenre, KindHarmonic,
	KindRhythmic, KindMixing, KindArrangement, KindQuick, KindDAWIntegration,
	KindLyrics,
}

var kindAliases = map[string]Kind{
	"comprehensive_analysis": KindComprehensive,
	"production_coaching":    KindCoaching,
	"creative_suggestions":   KindCreative,
	"genre_classification":   KindGenre,
	"harmonic_analysis":      KindHarmonic,
	"rhythm":                 KindRhythmic,
	"rhythm_analysis":        KindRhythmic,
	"mixing_mastering":       KindMixing,
	"arrangement_advice":     KindArrangement,
	"quick_analysis":         KindQuick,
	"daw":                    KindDAWIntegration,
	"daw-integration":        KindDAWIntegration,
	"fl_studio_optimization": KindDAWIntegration,
}

// ParseKind maps a kind name onto a Kind; the empty name is comprehensive.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return KindComprehensive, nil
	}
	for _, k := range Kinds {
		if string(k) == n {
			return k, nil
		}
	}
	if k, ok := kindAliases[n]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown analysis kind %q", ErrInvalidRequest, name)
}

// Request is one analysis of a feature record.
type Request struct {
	Features    *features.Record
	Kind        Kind
	Preferred   ProviderID
	UserContext map[string]any
	BypassCache bool
	ID          string
}

// EffectChain is an ordered list of effects suggested together.
type EffectChain struct {
	Name  string   `json:"name,omitempty"`
	Chain []string `json:"chain"`
}

// Result is the provider-independent analysis returned to callers. Every
// list and map is non-nil and every score lies in [0,1].
type Result struct {
	Provider                 ProviderID     `json:"provider"`
	Kind                     Kind           `json:"analysis_type"`
	Model                    string         `json:"model_used"`
	Timestamp                float64        `json:"timestamp"`
	Summary                  string         `json:"summary"`
	DetailedAnalysis         map[string]any `json:"detailed_analysis"`
	ProductionTips           []string       `json:"production_tips"`
	FLStudioRecommendations  []string       `json:"fl_studio_recommendations"`
	EffectSuggestions        []EffectChain  `json:"effect_suggestions"`
	CreativeIdeas            []string       `json:"creative_ideas"`
	ArrangementSuggestions   []string       `json:"arrangement_suggestions"`
	HarmonicAnalysis         map[string]any `json:"harmonic_analysis"`
	RhythmicAnalysis         map[string]any `json:"rhythmic_analysis"`
	SpectralAnalysis         map[string]any `json:"spectral_analysis"`
	CreativityScore          float64        `json:"creativity_score"`
	ProductionQualityScore   float64        `json:"production_quality_score"`
	CommercialPotentialScore float64        `json:"commercial_potential_score"`
	TokensUsed               int            `json:"tokens_used"`
	ProcessingTime           float64        `json:"processing_time"`
	Confidence               float64        `json:"confidence_score"`
	Cost                     float64        `json:"cost_estimate"`
	Cached                   bool           `json:"cached"`
	RequestID                string         `json:"request_id,omitempty"`
	RawResponse              string         `json:"raw_response,omitempty"`
}

// normalize fills absent collections and clamps the scores.
func (r *Result) normalize() {
	if r.DetailedAnalysis == nil {
		r.DetailedAnalysis = map[string]any{}
	}
	if r.HarmonicAnalysis == nil {
		r.HarmonicAnalysis = map[string]any{}
	}
	if r.RhythmicAnalysis == nil {
		r.RhythmicAnalysis = map[string]any{}
	}
	if r.SpectralAnalysis == nil {
		r.SpectralAnalysis = map[string]any{}
	}
	if r.ProductionTips == nil {
		r.ProductionTips = []string{}
	}
	if r.FLStudioRecommendations == nil {
		r.FLStudioRecommendations = []string{}
	}
	if r.EffectSuggestions == nil {
		r.EffectSuggestions = []EffectChain{}
	}
	for i := range r.EffectSuggestions {
		if r.EffectSuggestions[i].Chain == nil {
			r.EffectSuggestions[i].Chain = []string{}
		}
	}
	if r.CreativeIdeas == nil {
		r.CreativeIdeas = []string{}
	}
	if r.ArrangementSuggestions == nil {
		r.ArrangementSuggestions = []string{}
	}
	r.CreativityScore = clamp01(r.CreativityScore)
	r.ProductionQualityScore = clamp01(r.ProductionQualityScore)
	r.CommercialPotentialScore = clamp01(r.CommercialPotentialScore)
	r.Confidence = clamp01(r.Confidence)
	if r.TokensUsed < 0 {
		r.TokensUsed = 0
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
