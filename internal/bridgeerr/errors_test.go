package bridgeerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"taxonomy", Newf(CodeElementNotFound, "nothing matches #go"), CodeElementNotFound},
		{"wrapped", fmt.Errorf("click: %w", Newf(CodeElementAmbiguous, "2 match")), CodeElementAmbiguous},
		{"sentinel", fmt.Errorf("dial: %w", ErrTransportDisconnected), CodeTransportDisconnected},
		{"plain", io.ErrUnexpectedEOF, CodeInternal},
		{"context", context.Canceled, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewf_DerivesSentinel(t *testing.T) {
	err := Newf(CodeTabNotFound, "no tab %d", 9)
	if !errors.Is(err, ErrTabNotFound) {
		t.Error("expected errors.Is to match ErrTabNotFound")
	}
	if err.Error() != "no tab 9" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestError_FallsBackToWrappedMessage(t *testing.T) {
	err := New(CodeInternal, "", io.EOF)
	if err.Error() != "EOF" {
		t.Errorf("Error() = %q, want EOF", err.Error())
	}
}

func TestWire_RoundTrip(t *testing.T) {
	orig := Newf(CodeElementAmbiguous, "3 elements match .btn").With("count", 3).With("selector", ".btn")
	w := ToWire(fmt.Errorf("frame 1: %w", orig))
	if w.Code != CodeElementAmbiguous || w.Details["count"] != 3 {
		t.Fatalf("ToWire = %+v", w)
	}

	back := FromWire(w)
	if !errors.Is(back, ErrElementAmbiguous) {
		t.Error("rebuilt error lost its sentinel")
	}
	if CodeOf(back) != CodeElementAmbiguous {
		t.Errorf("CodeOf(rebuilt) = %q", CodeOf(back))
	}

	if ToWire(nil) != nil || FromWire(nil) != nil {
		t.Error("nil should stay nil")
	}
	if CodeOf(FromWire(&Wire{Message: "boom"})) != CodeInternal {
		t.Error("an empty wire code should become internal")
	}
}

func TestIsConnectionError(t *testing.T) {
	if !IsConnectionError(FromWire(&Wire{Code: CodeTransportDisconnected, Message: "gone"})) {
		t.Error("expected a connection error")
	}
	if IsConnectionError(Newf(CodeRequestTimeout, "slow")) {
		t.Error("a timeout is not a connection error")
	}
}
