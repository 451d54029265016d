// Package audio runs ffmpeg and ffprobe as bounded subprocesses.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var commandContext = exec.CommandContext

var (
	// ErrInvalidOutput is returned when a file is missing or empty.
	ErrInvalidOutput = errors.New("audio output missing or empty")
	// ErrTimeout is returned when a subprocess exceeded its wall clock.
	ErrTimeout = errors.New("audio subprocess timed out")
)

// DefaultEncodeArgs is the mp3 encoding applied by ApplyFilter.
var DefaultEncodeArgs = []string{"-ar", "44100", "-c:a", "libmp3lame", "-b:a", "192k"}

// Processor is the set of audio operations the pipeline needs.
type Processor interface {
	ApplyFilter(ctx context.Context, in, out, filter string) error
	Concat(ctx context.Context, inputs []string, out string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// Config configures the ffmpeg runner.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds every subprocess; the caller's context may be shorter.
	Timeout time.Duration
	// KillGrace is how long to wait for pipes after the process is killed.
	KillGrace  time.Duration
	EncodeArgs []string
	Logger     *slog.Logger
}

// FFmpeg implements Processor with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	ffmpeg     string
	ffprobe    string
	timeout    time.Duration
	killGrace  time.Duration
	encodeArgs []string
	logger     *slog.Logger
}

// New returns an FFmpeg runner with defaults filled in.
func New(cfg Config) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	if len(cfg.EncodeArgs) == 0 {
		cfg.EncodeArgs = DefaultEncodeArgs
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FFmpeg{
		ffmpeg:     cfg.FFmpegPath,
		ffprobe:    cfg.FFprobePath,
		timeout:    cfg.Timeout,
		killGrace:  cfg.KillGrace,
		encodeArgs: cfg.EncodeArgs,
		logger:     cfg.Logger,
	}
}

// ApplyFilter re-encodes in through an audio filter graph into out.
func (f *FFmpeg) ApplyFilter(ctx context.Context, in, out, filter string) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in, "-af", filter}
	args = append(args, f.encodeArgs...)
	args = append(args, out)

	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg filter: %w", err)
	}
	return ValidateOutput(out)
}

// Concat joins inputs in order with the concat demuxer, copying the codec.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}

	if len(inputs) == 1 {
		data, err := os.ReadFile(inputs[0])
		if err != nil {
			return fmt.Errorf("failed to read single input file: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		return ValidateOutput(out)
	}

	listPath := out + ".txt"
	if err := os.WriteFile(listPath, []byte(ConcatList(inputs)), 0o644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listPath)

	// -safe 0 allows absolute paths in the list.
	_, err := f.run(ctx, f.ffmpeg,
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return ValidateOutput(out)
}

// ConcatList renders a concat demuxer list file.
func ConcatList(inputs []string) string {
	var b strings.Builder
	for _, in := range inputs {
		escaped := strings.ReplaceAll(in, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

// Duration returns the container duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.run(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	d := gjson.GetBytes(out, "format.duration")
	if !d.Exists() {
		return 0, fmt.Errorf("ffprobe: no duration in output for %s", path)
	}
	secs := d.Float()
	if secs <= 0 {
		return 0, fmt.Errorf("ffprobe: non-positive duration %q for %s", d.String(), path)
	}
	return secs, nil
}

// ValidateOutput checks path exists and is non-empty.
func ValidateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidOutput, path, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOutput, path)
	}
	return nil
}

// CheckAvailable reports whether ffmpeg and ffprobe resolve on PATH.
func (f *FFmpeg) CheckAvailable() error {
	if _, err := exec.LookPath(f.ffmpeg); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath(f.ffprobe); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return nil
}

// run executes name under the runner timeout. The process is killed when
// the deadline passes; stderr is attached to any error.
func (f *FFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = f.killGrace

	start := time.Now()
	err := cmd.Run()
	f.logger.Debug("audio subprocess finished",
		"binary", name, "duration", time.Since(start), "error", err)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, time.Since(start).Round(time.Millisecond), name)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s", err, trimStderr(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	const max = 2000
	if len(s) > max {
		s = "..." + s[len(s)-max:]
	}
	return s
}

var _ Processor = (*FFmpeg)(nil)
