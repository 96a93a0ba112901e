package daw

// FL Studio suggestions
//
// SuggestFLStudio reads a feature record and proposes a project setup,
// native plugins and mixer inserts. The rules only look at summary values
// (tempo, key, mean centroid, harmonic ratio, crest factor, rhythm
// descriptor), so the same record always yields the same preset.

import (
	"fmt"
	"math"

	"samplemind/features"
)

type Plugin struct {
	Name    string            `json:"name"`
	Purpose string            `json:"purpose"`
	Params  map[string]string `json:"params,omitempty"`
}

type MixerInsert struct {
	Slot    int      `json:"slot"`
	Name    string   `json:"name"`
	Plugins []string `json:"plugins"`
}

type ProjectSetup struct {
	Tempo         float64 `json:"tempo"`
	Key           string  `json:"key"`
	TimeSignature string  `json:"time_signature"`
	PatternLength int     `json:"pattern_length_steps"`
}

type Preset struct {
	Project ProjectSetup  `json:"project"`
	Plugins []Plugin      `json:"plugins"`
	Mixer   []MixerInsert `json:"mixer"`
	Notes   []string      `json:"notes"`
}

const (
	lowCentroidHz  = 1200.0
	highCentroidHz = 3500.0
	highCrest      = 6.0
	fastTempo      = 120.0
)

// SuggestFLStudio derives a preset from rec. Groups missing from rec simply
// contribute no suggestions.
func SuggestFLStudio(rec *features.Record) Preset {
	p := Preset{
		Project: ProjectSetup{TimeSignature: "4/4", PatternLength: 16},
		Plugins: []Plugin{},
		Mixer:   []MixerInsert{},
		Notes:   []string{},
	}

	if r := rec.Rhythmic; r != nil {
		p.Project.Tempo = math.Round(float64(r.Tempo)*100) / 100
		if r.TimeSignature != "" {
			p.Project.TimeSignature = r.TimeSignature
		}
	}
	if t := rec.Tonal; t != nil {
		p.Project.Key = fmt.Sprintf("%s %s", t.Key, t.Mode)
	}

	centroid := rec.MeanCentroid()
	if rec.Spectral != nil {
		switch {
		case centroid < lowCentroidHz:
			p.Plugins = append(p.Plugins, Plugin{
				Name:    "Fruity Parametric EQ 2",
				Purpose: "low cut and low-mid cleanup on a bass-heavy source",
				Params:  map[string]string{"band1": "high-pass 30 Hz", "band3": "-2 dB at 300 Hz"},
			})
		case centroid > highCentroidHz:
			p.Plugins = append(p.Plugins, Plugin{
				Name:    "Fruity Parametric EQ 2",
				Purpose: "tame a bright top end",
				Params:  map[string]string{"band6": "-2 dB shelf at 8 kHz"},
			})
		}
	}

	if e := rec.Extended; e != nil && float64(e.CrestFactor) > highCrest {
		p.Plugins = append(p.Plugins, Plugin{
			Name:    "Maximus",
			Purpose: "control transient peaks",
			Params:  map[string]string{"preset": "Clipper", "crest_factor": fmt.Sprintf("%.1f", float64(e.CrestFactor))},
		})
	}

	if r := rec.Rhythmic; r != nil {
		if float64(r.Tempo) >= fastTempo {
			p.Plugins = append(p.Plugins, Plugin{
				Name:    "Gross Beat",
				Purpose: "half-time and stutter variations at this tempo",
			})
		}
		if sync := float64(r.RhythmDescriptor[3]); sync > 0.1 {
			p.Notes = append(p.Notes, "syncopated groove: try swing 20-30% in the channel rack")
		}
	}

	if t := rec.Tonal; t != nil {
		if float64(t.HarmonicRatio) >= 0.6 {
			p.Plugins = append(p.Plugins, Plugin{
				Name:    "Fruity Reeverb 2",
				Purpose: "space for sustained harmonic content",
				Params:  map[string]string{"decay": "2.5 s", "mix": "15%"},
			})
		} else {
			p.Plugins = append(p.Plugins, Plugin{
				Name:    "Fruity Limiter",
				Purpose: "glue percussive material",
				Params:  map[string]string{"mode": "compressor", "ratio": "4:1"},
			})
		}
	}

	slot := 1
	drums := MixerInsert{Slot: slot, Name: "Drums", Plugins: []string{"Fruity Limiter"}}
	p.Mixer = append(p.Mixer, drums)
	slot++

	music := MixerInsert{Slot: slot, Name: "Music", Plugins: []string{"Fruity Parametric EQ 2"}}
	if rec.Tonal != nil && float64(rec.Tonal.HarmonicRatio) >= 0.6 {
		music.Plugins = append(music.Plugins, "Fruity Reeverb 2")
	}
	p.Mixer = append(p.Mixer, music)
	slot++

	master := []string{"Fruity Parametric EQ 2", "Maximus"}
	p.Mixer = append(p.Mixer, MixerInsert{Slot: slot, Name: "Bus", Plugins: master})

	if p.Project.Key != "" {
		p.Notes = append(p.Notes, fmt.Sprintf("set the piano roll scale helper to %s", p.Project.Key))
	}
	return p
}
