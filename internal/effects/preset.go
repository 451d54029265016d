package effects

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Preset file layout:
//
//	[[stage]]
//	type = "pitch_shift"
//	ratio = 0.93
//	tempo = 1.0
//
//	[[stage]]
//	type = "equalizer"
//	name = "low"
//	  [[stage.band]]
//	  frequency = 100.0
//	  width_type = "q"
//	  width = 1.1
//	  gain = 3.5
type presetFile struct {
	Stages []presetStage `toml:"stage"`
}

// presetStage is the union of every stage's parameters.
type presetStage struct {
	Type string `toml:"type"`

	Name  string `toml:"name,omitempty"`
	Bands []Band `toml:"band,omitempty"`

	Ratio float64 `toml:"ratio,omitempty"`
	Tempo float64 `toml:"tempo,omitempty"`

	Intensity float64 `toml:"intensity,omitempty"`
	Max       float64 `toml:"max,omitempty"`
	Frequency float64 `toml:"frequency,omitempty"`

	ThresholdDB float64 `toml:"threshold_db,omitempty"`
	Makeup      float64 `toml:"makeup,omitempty"`
	Limit       float64 `toml:"limit,omitempty"`
	AttackMs    float64 `toml:"attack_ms,omitempty"`
	ReleaseMs   float64 `toml:"release_ms,omitempty"`

	Seconds float64 `toml:"seconds,omitempty"`
}

func (p presetStage) stage() (Stage, error) {
	switch p.Type {
	case KindPitchShift:
		return PitchShift{Ratio: p.Ratio, Tempo: p.Tempo}, nil
	case KindEqualizer:
		return Equalizer{Name: p.Name, Bands: p.Bands}, nil
	case KindDeEsser:
		return DeEsser{Intensity: p.Intensity, Max: p.Max, Frequency: p.Frequency}, nil
	case KindCompressor:
		return Compressor{ThresholdDB: p.ThresholdDB, Ratio: p.Ratio, AttackMs: p.AttackMs, ReleaseMs: p.ReleaseMs, Makeup: p.Makeup}, nil
	case KindLimiter:
		return Limiter{Limit: p.Limit, AttackMs: p.AttackMs, ReleaseMs: p.ReleaseMs}, nil
	case KindUpmix:
		return Upmix{}, nil
	case KindFade:
		return Fade{Seconds: p.Seconds}, nil
	default:
		return nil, fmt.Errorf("unknown stage type %q", p.Type)
	}
}

func presetFor(s Stage) presetStage {
	p := presetStage{Type: s.Kind()}
	switch v := s.(type) {
	case PitchShift:
		p.Ratio, p.Tempo = v.Ratio, v.Tempo
	case Equalizer:
		p.Name, p.Bands = v.Name, v.Bands
	case DeEsser:
		p.Intensity, p.Max, p.Frequency = v.Intensity, v.Max, v.Frequency
	case Compressor:
		p.ThresholdDB, p.Ratio, p.AttackMs, p.ReleaseMs, p.Makeup = v.ThresholdDB, v.Ratio, v.AttackMs, v.ReleaseMs, v.Makeup
	case Limiter:
		p.Limit, p.AttackMs, p.ReleaseMs = v.Limit, v.AttackMs, v.ReleaseMs
	case Fade:
		p.Seconds = v.Seconds
	}
	return p
}

// ParsePreset decodes and validates a TOML stage chain. Unknown keys are
// rejected.
func ParsePreset(data []byte) ([]Stage, error) {
	var f presetFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode preset: %w", err)
	}

	stages := make([]Stage, 0, len(f.Stages))
	for i, ps := range f.Stages {
		s, err := ps.stage()
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		stages = append(stages, s)
	}
	if err := ValidateChain(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// LoadPreset reads a preset file.
func LoadPreset(path string) ([]Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	stages, err := ParsePreset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stages, nil
}

// MarshalPreset encodes stages in the preset layout.
func MarshalPreset(stages []Stage) ([]byte, error) {
	f := presetFile{Stages: make([]presetStage, 0, len(stages))}
	for _, s := range stages {
		f.Stages = append(f.Stages, presetFor(s))
	}
	return toml.Marshal(f)
}
