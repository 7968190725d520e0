package orchestrator

import (
	"errors"
	"fmt"
	"testing"
)

func TestCoreError_IsMatchesKindSentinel(t *testing.T) {
	err := NewError(KindNotFound, "manager.get-agent", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound")
	}
	if errors.Is(err, ErrBusy) {
		t.Error("expected errors.Is not to match a different kind")
	}
}

func TestCoreError_UnwrapReachesUnderlyingError(t *testing.T) {
	underlying := fmt.Errorf("dial tcp: connection refused")
	err := NewError(KindProviderError, "stt.transcribe", underlying)
	if !errors.Is(err, underlying) {
		t.Error("expected errors.Is to reach the wrapped underlying error")
	}
}

func TestCoreError_ErrorMessageIncludesOpAndKind(t *testing.T) {
	err := NewError(KindRateLimited, "agent.generate", nil)
	msg := err.Error()
	if msg != "agent.generate: RateLimited" {
		t.Errorf("unexpected message: %q", msg)
	}
}
