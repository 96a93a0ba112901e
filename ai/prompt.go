package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"samplemind/features"
)

// SystemPrompt is the role every provider is given.
const SystemPrompt = `You are an expert music producer and audio engineer with deep knowledge of:
- Music production techniques and workflow optimization
- FL Studio and professional DAW usage
- Music theory, harmony, and composition
- Sound design and mixing/mastering
- Creative arrangement and genre exploration

Always answer with a single JSON object and nothing else.`

var tasks = map[Kind]string{
	KindComprehensive: `**Task: Comprehensive Music Analysis**

Cover the overall impression (genre, style, mood), production quality,
creative elements, music theory, FL Studio tips, three to five actionable
improvements and new creative directions.`,
	KindCoaching: `**Task: Production Coaching**

Cover mix balance and dynamics, the techniques in use and alternatives,
workflow improvements, common mistakes to avoid and concrete next steps.
Be specific, educational and encouraging.`,
	KindCreative: `**Task: Creative Suggestions**

Suggest arrangement ideas, genre fusions, new instrumentation or layering,
textural variations and bold experimental directions.`,
	KindGenre: `**Task: Genre Classification**

Name the most likely primary genre and up to three secondary genres, with
the musical evidence for each and reference artists.`,
	KindHarmonic: `**Task: Harmonic Analysis**

Describe the tonal centre, likely chord progressions, modal colour, voice
leading options and how harmony shapes the mood.`,
	KindRhythmic: `**Task: Rhythm Analysis**

Describe groove, meter, syncopation, drum programming and how the rhythm
pattern could be developed or varied.`,
	KindMixing: `**Task: Mixing & Mastering Analysis**

Give frequency balance decisions, dynamics processing with ratios and
thresholds, spatial design, problem frequencies and a mastering chain.`,
	KindArrangement: `**Task: Arrangement Advice**

Propose a section structure with bar counts, energy curve, transitions,
build-ups and breakdowns suited to this material.`,
	KindQuick: `**Task: Quick Analysis**

Give a short overview and the three most important production tips. Keep
every field brief.`,
	KindDAWIntegration: `**Task: FL Studio Optimization**

Recommend native plugins, mixer routing and sends, step-by-step effect
chains, parameters to automate and a project template for this style.`,
	KindLyrics: `**Task: Lyric and Vocal Direction**

Suggest lyrical themes, vocal delivery, phrasing against the rhythm and
where vocals should sit in the arrangement and the mix.`,
}

const outputFormat = `**Output Format:**
Respond with one JSON object with these keys:
{
    "summary": "Brief 2-3 sentence overview",
    "detailed_analysis": {"overview": "...", "notes": "..."},
    "production_tips": ["tip1", "tip2"],
    "fl_studio_recommendations": ["rec1", "rec2"],
    "effect_suggestions": [{"name": "...", "chain": ["effect1", "effect2"]}],
    "creative_ideas": ["idea1", "idea2"],
    "arrangement_suggestions": ["suggestion1", "suggestion2"],
    "harmonic_analysis": {"key_info": "...", "progressions": []},
    "rhythmic_analysis": {"groove": "...", "notes": "..."},
    "spectral_analysis": {"balance": "...", "notes": "..."},
    "creativity_score": 0.0-1.0,
    "production_quality_score": 0.0-1.0,
    "commercial_potential_score": 0.0-1.0,
    "confidence_score": 0.0-1.0
}`

// BuildPrompt renders the user prompt for req: the audio features, the
// optional user context, the task for req.Kind and the output schema.
func BuildPrompt(req *Request) (string, error) {
	if req == nil || req.Features == nil {
		return "", fmt.Errorf("%w: missing feature record", ErrInvalidRequest)
	}
	task, ok := tasks[req.Kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown analysis kind %q", ErrInvalidRequest, req.Kind)
	}

	var b strings.Builder
	b.WriteString("Analyze the following audio track.\n\n")
	writeFeatures(&b, req.Features)

	if len(req.UserContext) > 0 {
		ctxJSON, err := json.MarshalIndent(req.UserContext, "", "  ")
		if err != nil {
			return "", fmt.Errorf("%w: user context: %w", ErrInvalidRequest, err)
		}
		fmt.Fprintf(&b, "\n**User Context:** %s\n", ctxJSON)
	}

	b.WriteString("\n")
	b.WriteString(task)
	b.WriteString("\n\n")
	b.WriteString(outputFormat)
	b.WriteString("\n")
	return b.String(), nil
}

func writeFeatures(b *strings.Builder, rec *features.Record) {
	b.WriteString("**Audio Features:**\n")

	tempo, key, mode := "Unknown", "Unknown", ""
	if rec.Rhythmic != nil {
		tempo = fmt.Sprintf("%.1f", float64(rec.Rhythmic.Tempo))
	}
	if rec.Tonal != nil {
		key, mode = rec.Tonal.Key, rec.Tonal.Mode
	}
	fmt.Fprintf(b, "- Tempo: %s BPM\n", tempo)
	fmt.Fprintf(b, "- Key: %s %s\n", key, mode)

	if rec.Basic != nil {
		fmt.Fprintf(b, "- Duration: %.2fs\n", float64(rec.Basic.Duration))
		fmt.Fprintf(b, "- Energy Level (RMS): %.4f\n", float64(rec.Basic.RMSLevel))
	}
	if rec.Spectral != nil {
		fmt.Fprintf(b, "- Mean Spectral Centroid: %.1f Hz\n", rec.MeanCentroid())
	}
	if rec.Tonal != nil {
		fmt.Fprintf(b, "- Harmonic Ratio: %.3f\n", float64(rec.Tonal.HarmonicRatio))
	}
	if rec.Rhythmic != nil {
		d := rec.Rhythmic.RhythmDescriptor
		fmt.Fprintf(b, "- Rhythm (downbeat/backbeat/offbeat/syncopation): %.2f/%.2f/%.2f/%.2f\n",
			float64(d[0]), float64(d[1]), float64(d[2]), float64(d[3]))
		fmt.Fprintf(b, "- Time Signature: %s\n", rec.Rhythmic.TimeSignature)
	}
	if rec.Decomposition != nil {
		fmt.Fprintf(b, "- Harmonic/Percussive Energy: %.2f/%.2f\n",
			float64(rec.Decomposition.Harmonic.EnergyRatio),
			float64(rec.Decomposition.Percussive.EnergyRatio))
	}
}
