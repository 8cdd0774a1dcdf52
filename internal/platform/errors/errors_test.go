package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindProbe, "probe.get", "health check failed",
				errors.New("connection refused")),
			contains: []string{"[probe:probe.get]", "health check failed", "connection refused"},
		},
		{
			name:     "error without cause",
			err:      New(KindConfig, "session.login", "server not configured"),
			contains: []string{"[config:session.login]", "server not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindStorage, "store.save", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestWrap_PreservesTypedErrors(t *testing.T) {
	inner := New(KindAuth, "session.check", "token rejected")
	outer := Wrap(KindUnknown, "caller", "outer context", inner)

	if outer.Kind != KindAuth {
		t.Errorf("expected wrap to keep the typed kind, got %s", outer.Kind)
	}
}

func TestClassify_OverridesTypedKind(t *testing.T) {
	inner := Wrap(KindTransport, "api.request", "GET https://host/health",
		errors.New("connection refused"))
	outer := Classify(KindProbe, "probe.check", "https://host", inner)

	if outer.Kind != KindProbe {
		t.Errorf("expected classify to apply the new kind, got %s", outer.Kind)
	}
	if !IsKind(outer, KindProbe) {
		t.Error("IsKind should report the outer kind")
	}
	if !errors.Is(outer, inner) {
		t.Error("the typed cause should stay reachable in the chain")
	}
}

func TestClassify_NilError(t *testing.T) {
	if err := Classify(KindProbe, "probe.check", "message", nil); err != nil {
		t.Errorf("expected nil for nil cause, got %v", err)
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindPairing, "pairing.poll", "message"),
			kind:     KindPairing,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      Wrap(KindRejected, "session.login", "message", errors.New("cause")),
			kind:     KindRejected,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindProbe, "probe.get", "message"),
			kind:     KindAuth,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindProbe,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}
