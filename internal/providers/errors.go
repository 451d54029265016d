package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrorKind tags a synthesis failure at the provider boundary.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindTimeout
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SynthesisError is the structured failure every provider returns.
type SynthesisError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Transient  bool // KindUnknown failures that are safe to retry (5xx, dropped connections)
	Message    string
	Err        error
}

func (e *SynthesisError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *SynthesisError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout:
		return true
	case KindUnknown:
		return e.Transient
	default:
		return false
	}
}

// AsSynthesisError extracts a *SynthesisError from an error chain.
func AsSynthesisError(err error) (*SynthesisError, bool) {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Classify returns the kind for any error, typed or not.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if se, ok := AsSynthesisError(err); ok {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := AsSynthesisError(err); ok {
		return se.Retryable()
	}
	switch Classify(err) {
	case KindTimeout, KindRateLimited:
		return true
	case KindFatal:
		return false
	}
	return isTransientNetwork(err)
}

// RetryAfterHint returns the provider's requested wait, or zero.
func RetryAfterHint(err error) time.Duration {
	if se, ok := AsSynthesisError(err); ok {
		return se.RetryAfter
	}
	return 0
}

// wrapTransport turns a transport-level failure into a SynthesisError.
func wrapTransport(provider string, err error) error {
	if _, ok := AsSynthesisError(err); ok {
		return err
	}
	kind := Classify(err)
	return &SynthesisError{
		Provider:  provider,
		Kind:      kind,
		Transient: kind == KindUnknown && isTransientNetwork(err),
		Err:       err,
	}
}

// errorFromStatus maps an HTTP status onto a SynthesisError.
func errorFromStatus(provider string, status int, message string, header http.Header) *SynthesisError {
	se := &SynthesisError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
	}
	switch {
	case status == http.StatusTooManyRequests || isThrottleSignal(message):
		se.Kind = KindRateLimited
		if header != nil {
			se.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		se.Kind = KindTimeout
	case status >= 500:
		se.Kind = KindUnknown
		se.Transient = true
	default:
		se.Kind = KindFatal
	}
	return se
}

var throttleSignals = []string{
	"throttling",
	"toomanyrequests",
	"too many requests",
	"slow down",
	"rate exceeded",
	"rate limit",
}

// isThrottleSignal matches the throttling vocabulary providers put in error
// codes and messages.
func isThrottleSignal(s string) bool {
	s = strings.ToLower(s)
	for _, sig := range throttleSignals {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isTransientNetwork(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
