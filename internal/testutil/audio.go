package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
)

// FakeAudio stands in for ffmpeg. Concat joins input bytes, ApplyFilter
// appends the filter to the input bytes, and Duration reports a fixed value.
type FakeAudio struct {
	// Seconds is returned by Duration unless DurationFor is set.
	Seconds     float64
	DurationFor func(path string) (float64, error)

	// FilterErr, when set, is consulted before each ApplyFilter.
	FilterErr func(filter string) error
	// ConcatErr, when set, is consulted before each Concat.
	ConcatErr func(inputs []string) error

	mu      sync.Mutex
	filters []string
	concats [][]string
}

func (f *FakeAudio) ApplyFilter(ctx context.Context, in, out, filter string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	if f.FilterErr != nil {
		if err := f.FilterErr(filter); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", in)
	}
	return os.WriteFile(out, append(data, []byte("|"+filter)...), 0o644)
}

func (f *FakeAudio) Concat(ctx context.Context, inputs []string, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.concats = append(f.concats, append([]string(nil), inputs...))
	f.mu.Unlock()

	if f.ConcatErr != nil {
		if err := f.ConcatErr(inputs); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return os.WriteFile(out, buf.Bytes(), 0o644)
}

func (f *FakeAudio) Duration(_ context.Context, path string) (float64, error) {
	if f.DurationFor != nil {
		return f.DurationFor(path)
	}
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.Seconds, nil
}

// Filters returns the filter strings applied so far.
func (f *FakeAudio) Filters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filters...)
}

// Concats returns the input groups of each Concat call.
func (f *FakeAudio) Concats() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.concats))
	copy(out, f.concats)
	return out
}
