package ai

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	defaultConfidence = 0.85
	fallbackSummary   = 500
)

// ParseResponse maps a provider's text reply onto a Result. Replies that
// are not a JSON object are kept whole: the first characters become the
// summary and the full text the detailed analysis.
func ParseResponse(provider ProviderID, kind Kind, content string) (*Result, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, &ParseError{Provider: provider, Reason: "empty response"}
	}

	res := &Result{Provider: provider, Kind: kind, Confidence: defaultConfidence}

	var data map[string]any
	if err := json.Unmarshal([]byte(stripFences(text)), &data); err != nil || data == nil {
		res.Summary = truncateRunes(text, fallbackSummary)
		res.DetailedAnalysis = map[string]any{"text": text}
		res.normalize()
		return res, nil
	}

	res.Summary = stringField(data["summary"])
	res.DetailedAnalysis = mapField(data["detailed_analysis"])
	res.ProductionTips = stringList(data["production_tips"])
	res.FLStudioRecommendations = stringList(data["fl_studio_recommendations"])
	res.EffectSuggestions = effectChains(data["effect_suggestions"])
	res.CreativeIdeas = stringList(data["creative_ideas"])
	res.ArrangementSuggestions = stringList(data["arrangement_suggestions"])
	res.HarmonicAnalysis = mapField(data["harmonic_analysis"])
	res.RhythmicAnalysis = mapField(data["rhythmic_analysis"])
	res.SpectralAnalysis = mapField(data["spectral_analysis"])
	res.CreativityScore, _ = number(data["creativity_score"])
	res.ProductionQualityScore, _ = number(data["production_quality_score"])
	res.CommercialPotentialScore, _ = number(data["commercial_potential_score"])
	if c, ok := number(data["confidence_score"]); ok {
		res.Confidence = c
	}
	res.normalize()
	return res, nil
}

// stripFences returns the body of the first markdown code block, or s when
// there is none.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(body[:nl]); lang == "" || !strings.ContainsAny(lang, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func mapField(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		if t == "" {
			return map[string]any{}
		}
		return map[string]any{"text": t}
	case []any:
		return map[string]any{"items": t}
	default:
		return map[string]any{}
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringField(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func effectChains(v any) []EffectChain {
	items, ok := v.([]any)
	if !ok {
		return []EffectChain{}
	}
	out := make([]EffectChain, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, EffectChain{Chain: []string{t}})
		case []any:
			out = append(out, EffectChain{Chain: stringList(t)})
		case map[string]any:
			out = append(out, EffectChain{
				Name:  stringField(t["name"]),
				Chain: stringList(t["chain"]),
			})
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
