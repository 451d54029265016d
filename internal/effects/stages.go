// Package effects runs the post-production filter chain over merged
// narration, one ffmpeg pass per stage.
package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Stage is one typed filter in the chain.
type Stage interface {
	// Kind is the preset type name.
	Kind() string
	Validate() error
	// Filter renders the ffmpeg -af expression. Stages that do not depend on
	// the input length ignore duration.
	Filter(duration float64) string
}

// durationStage is implemented by stages that need the probed input length.
type durationStage interface {
	NeedsDuration() bool
}

const (
	KindPitchShift = "pitch_shift"
	KindEqualizer  = "equalizer"
	KindDeEsser    = "deesser"
	KindCompressor = "compressor"
	KindLimiter    = "limiter"
	KindUpmix      = "upmix"
	KindFade       = "fade"
)

// DefaultFadeSeconds is the fade in and fade out length.
const DefaultFadeSeconds = 3.0

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func inRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s %s out of range [%s, %s]", name, num(v), num(lo), num(hi))
	}
	return nil
}

// PitchShift lowers or raises pitch with rubberband.
type PitchShift struct {
	Ratio float64 `toml:"ratio"`
	Tempo float64 `toml:"tempo"`
}

func (PitchShift) Kind() string { return KindPitchShift }

func (s PitchShift) Validate() error {
	if err := inRange("pitch ratio", s.Ratio, 0.01, 100); err != nil {
		return err
	}
	return inRange("tempo", s.Tempo, 0.01, 100)
}

func (s PitchShift) Filter(float64) string {
	return fmt.Sprintf("rubberband=pitch=%s:tempo=%s", num(s.Ratio), num(s.Tempo))
}

// Band is one peaking equalizer band. WidthType is ffmpeg's width_type
// ("q", "h", "o", "s" or "k"); Width is omitted from the filter when zero.
type Band struct {
	Frequency float64 `toml:"frequency"`
	WidthType string  `toml:"width_type"`
	Width     float64 `toml:"width,omitempty"`
	Gain      float64 `toml:"gain"`
}

// Equalizer applies its bands in order within a single pass.
type Equalizer struct {
	Name  string `toml:"name,omitempty"`
	Bands []Band `toml:"band"`
}

func (Equalizer) Kind() string { return KindEqualizer }

func (e Equalizer) Validate() error {
	if len(e.Bands) == 0 {
		return fmt.Errorf("equalizer %q has no bands", e.Name)
	}
	for i, b := range e.Bands {
		if err := inRange("band frequency", b.Frequency, 1, 24000); err != nil {
			return fmt.Errorf("band %d: %w", i, err)
		}
		switch b.WidthType {
		case "q", "h", "o", "s", "k":
		default:
			return fmt.Errorf("band %d: unknown width type %q", i, b.WidthType)
		}
		if b.Width < 0 {
			return fmt.Errorf("band %d: negative width", i)
		}
		if err := inRange("band gain", b.Gain, -30, 30); err != nil {
			return fmt.Errorf("band %d: %w", i, err)
		}
	}
	return nil
}

func (e Equalizer) Filter(float64) string {
	parts := make([]string, 0, len(e.Bands))
	for _, b := range e.Bands {
		f := fmt.Sprintf("equalizer=f=%s:t=%s", num(b.Frequency), b.WidthType)
		if b.Width > 0 {
			f += ":w=" + num(b.Width)
		}
		parts = append(parts, f+":g="+num(b.Gain))
	}
	return strings.Join(parts, ",")
}

type DeEsser struct {
	Intensity float64 `toml:"intensity"`
	Max       float64 `toml:"max"`
	Frequency float64 `toml:"frequency"`
}

func (DeEsser) Kind() string { return KindDeEsser }

func (d DeEsser) Validate() error {
	if err := inRange("deesser intensity", d.Intensity, 0, 1); err != nil {
		return err
	}
	if err := inRange("deesser max", d.Max, 0, 1); err != nil {
		return err
	}
	return inRange("deesser frequency", d.Frequency, 0, 1)
}

func (d DeEsser) Filter(float64) string {
	return fmt.Sprintf("deesser=i=%s:m=%s:f=%s", num(d.Intensity), num(d.Max), num(d.Frequency))
}

// Compressor times are in milliseconds.
type Compressor struct {
	ThresholdDB float64 `toml:"threshold_db"`
	Ratio       float64 `toml:"ratio"`
	AttackMs    float64 `toml:"attack_ms"`
	ReleaseMs   float64 `toml:"release_ms"`
	Makeup      float64 `toml:"makeup"`
}

func (Compressor) Kind() string { return KindCompressor }

func (c Compressor) Validate() error {
	checks := []error{
		inRange("compressor threshold", c.ThresholdDB, -60, 0),
		inRange("compressor ratio", c.Ratio, 1, 20),
		inRange("compressor attack", c.AttackMs, 0.01, 2000),
		inRange("compressor release", c.ReleaseMs, 0.01, 9000),
		inRange("compressor makeup", c.Makeup, 1, 64),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Compressor) Filter(float64) string {
	return fmt.Sprintf("acompressor=threshold=%sdB:ratio=%s:attack=%s:release=%s:makeup=%s",
		num(c.ThresholdDB), num(c.Ratio), num(c.AttackMs), num(c.ReleaseMs), num(c.Makeup))
}

type Limiter struct {
	Limit     float64 `toml:"limit"`
	AttackMs  float64 `toml:"attack_ms"`
	ReleaseMs float64 `toml:"release_ms"`
}

func (Limiter) Kind() string { return KindLimiter }

func (l Limiter) Validate() error {
	if err := inRange("limiter limit", l.Limit, 0.0625, 1); err != nil {
		return err
	}
	if err := inRange("limiter attack", l.AttackMs, 0.1, 80); err != nil {
		return err
	}
	return inRange("limiter release", l.ReleaseMs, 1, 8000)
}

func (l Limiter) Filter(float64) string {
	return fmt.Sprintf("alimiter=limit=%s:attack=%s:release=%s", num(l.Limit), num(l.AttackMs), num(l.ReleaseMs))
}

// Upmix copies the mono channel to both sides of a stereo stream.
type Upmix struct{}

func (Upmix) Kind() string { return KindUpmix }

func (Upmix) Validate() error { return nil }

func (Upmix) Filter(float64) string { return "pan=stereo|c0=c0|c1=c0" }

// Fade applies a fade in at the start and a fade out at the end.
type Fade struct {
	Seconds float64 `toml:"seconds"`
}

func (Fade) Kind() string { return KindFade }

func (Fade) NeedsDuration() bool { return true }

func (f Fade) Validate() error {
	return inRange("fade seconds", f.Seconds, 0.1, 60)
}

// Filter anchors the fade out at duration-Seconds when the clip is longer
// than both fades together. Otherwise, including an unknown duration of 0,
// it falls back to the duration-agnostic form.
func (f Fade) Filter(duration float64) string {
	d := num(f.Seconds)
	if duration > 2*f.Seconds {
		return fmt.Sprintf("afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s", d, num(math.Round((duration-f.Seconds)*1000)/1000), d)
	}
	return fmt.Sprintf("afade=t=in:d=%s,afade=t=out:d=%s", d, d)
}

// DefaultChain is the narration mastering chain.
func DefaultChain(fadeSeconds float64) []Stage {
	if fadeSeconds <= 0 {
		fadeSeconds = DefaultFadeSeconds
	}
	return []Stage{
		PitchShift{Ratio: 0.93, Tempo: 1.0},
		Equalizer{Name: "low", Bands: []Band{
			{Frequency: 100, WidthType: "q", Width: 1.1, Gain: 3.5},
		}},
		Equalizer{Name: "presence", Bands: []Band{
			{Frequency: 2200, WidthType: "q", Width: 1.5, Gain: 1.5},
			{Frequency: 4500, WidthType: "q", Width: 2.0, Gain: -2.8},
			{Frequency: 8500, WidthType: "h", Gain: -2},
		}},
		DeEsser{Intensity: 0.4, Max: 0.75, Frequency: 0.5},
		Compressor{ThresholdDB: -20, Ratio: 4, AttackMs: 15, ReleaseMs: 250, Makeup: 3},
		Limiter{Limit: 0.95, AttackMs: 5, ReleaseMs: 100},
		Upmix{},
		Fade{Seconds: fadeSeconds},
	}
}

// ValidateChain checks every stage.
func ValidateChain(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("effects chain is empty")
	}
	for i, s := range stages {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i+1, s.Kind(), err)
		}
	}
	return nil
}
