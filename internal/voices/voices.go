// Package voices lists and checks the voices a synthesis provider offers.
package voices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/studio/internal/providers"
)

var (
	// ErrNotSupported is returned when the provider cannot enumerate voices.
	ErrNotSupported = errors.New("provider does not list voices")

	// ErrUnknownVoice is returned when a configured voice is not offered.
	ErrUnknownVoice = errors.New("unknown voice")
)

// Voice is a provider voice as shown to the operator.
type Voice struct {
	VoiceID     string `json:"voice_id" yaml:"voice_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string `json:"provider" yaml:"provider"`
	IsDefault   bool   `json:"is_default" yaml:"is_default"`
}

// List fetches the provider's voices sorted by name. The voice matching
// defaultVoice by id or name is flagged as the default.
func List(ctx context.Context, p providers.TTSProvider, defaultVoice string) ([]Voice, error) {
	lister, ok := p.(providers.VoicesLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, p.Name())
	}
	apiVoices, err := lister.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s voices: %w", p.Name(), err)
	}

	out := make([]Voice, 0, len(apiVoices))
	for _, v := range apiVoices {
		out = append(out, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
			Provider:    p.Name(),
			IsDefault:   matches(v, defaultVoice),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Check reports whether voice is offered by p. Providers that cannot list
// voices, and an empty voice, always pass.
func Check(ctx context.Context, p providers.TTSProvider, voice string) error {
	if voice == "" {
		return nil
	}
	lister, ok := p.(providers.VoicesLister)
	if !ok {
		return nil
	}
	apiVoices, err := lister.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list %s voices: %w", p.Name(), err)
	}
	for _, v := range apiVoices {
		if matches(v, voice) {
			return nil
		}
	}
	return fmt.Errorf("%w %q for provider %s", ErrUnknownVoice, voice, p.Name())
}

func matches(v providers.Voice, voice string) bool {
	if voice == "" {
		return false
	}
	return v.VoiceID == voice || strings.EqualFold(v.Name, voice)
}

// Table renders voices for the CLI.
type Table []Voice

func (t Table) Table() ([]string, [][]string) {
	rows := make([][]string, 0, len(t))
	for _, v := range t {
		def := ""
		if v.IsDefault {
			def = "*"
		}
		rows = append(rows, []string{def, v.VoiceID, v.Name, v.Description})
	}
	return []string{"", "Voice ID", "Name", "Description"}, rows
}
