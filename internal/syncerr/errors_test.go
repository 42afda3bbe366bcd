package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := New(KindTransport, "plexclient", "fetch_metadata", inner)

	if !errors.Is(err, inner) {
		t.Error("expected Unwrap chain to reach the inner error")
	}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := New(KindRateLimit, "anilistclient", "save_entry", errors.New("429"))
	if !Is(err, KindRateLimit) {
		t.Error("expected Is to match KindRateLimit")
	}
	if Is(err, KindAuth) {
		t.Error("expected Is not to match an unrelated kind")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindInternal) {
		t.Error("expected Is to return false for a non-syncerr error")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("expected KindOf to default to KindInternal for unclassified errors")
	}
}

func TestKindOfThroughWrap(t *testing.T) {
	err := New(KindValidation, "mapping", "parse", errors.New("bad expr"))
	wrapped := fmt.Errorf("outer context: %w", err)
	if KindOf(wrapped) != KindValidation {
		t.Error("expected KindOf to see through fmt.Errorf wrapping")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindRateLimit, true},
		{KindTransport, true},
		{KindAuth, false},
		{KindValidation, false},
		{KindInternal, false},
	}
	for _, c := range cases {
		err := New(c.kind, "component", "op", errors.New("x"))
		if got := Retryable(err); got != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestErrorStringWithoutInnerErr(t *testing.T) {
	err := &Error{Kind: KindConfig, Component: "config", Op: "load"}
	if err.Error() == "" {
		t.Error("expected non-empty message even with a nil inner error")
	}
}
