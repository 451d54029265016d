package providers

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapGoogleError(t *testing.T) {
	tests := []struct {
		code      codes.Code
		kind      ErrorKind
		retryable bool
	}{
		{codes.ResourceExhausted, KindRateLimited, true},
		{codes.DeadlineExceeded, KindTimeout, true},
		{codes.Unavailable, KindUnknown, true},
		{codes.Internal, KindUnknown, true},
		{codes.Unknown, KindUnknown, false},
		{codes.InvalidArgument, KindFatal, false},
		{codes.PermissionDenied, KindFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			got := mapGoogleError(status.Error(tt.code, "msg"))
			if Classify(got) != tt.kind {
				t.Fatalf("Classify() = %s, want %s", Classify(got), tt.kind)
			}
			if IsRetryable(got) != tt.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", IsRetryable(got), tt.retryable)
			}
		})
	}
}

func TestMapGoogleErrorNonStatus(t *testing.T) {
	got := mapGoogleError(errors.New("plain"))
	se, ok := AsSynthesisError(got)
	if !ok || se.Provider != GoogleTTSName {
		t.Fatalf("expected google SynthesisError, got %v", got)
	}
}
