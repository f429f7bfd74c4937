package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Is(t *testing.T) {
	cause := errors.New("bad digit")
	err := E(ErrParse, "normalize timestamp", cause)

	if !errors.Is(err, ErrParse) {
		t.Error("expected errors.Is(err, ErrParse)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("did not expect errors.Is(err, ErrNotFound)")
	}
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no cause", E(ErrNotFound, "last trade", nil), "last trade: not found"},
		{"with cause", Errorf(ErrValidation, "parse query", "missing %q", "product_id"), `parse query: validation error: missing "product_id"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", E(ErrStoreUnavailable, "init schema", nil))
	if KindOf(wrapped) != ErrStoreUnavailable {
		t.Errorf("KindOf() = %v, want ErrStoreUnavailable", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != nil {
		t.Error("KindOf(plain) should be nil")
	}
}
