package oops

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(NotFound, "no deployment %q", "api")
	wrapped := fmt.Errorf("resolve target: %w", base)
	doubly := fmt.Errorf("execute: %w", wrapped)

	if !Is(doubly, NotFound) {
		t.Errorf("Is(doubly, NotFound) = false, want true")
	}
	if got := KindOf(doubly); got != NotFound {
		t.Errorf("KindOf = %q, want %q", got, NotFound)
	}
}

func TestKindOfUntagged(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != Internal {
		t.Errorf("KindOf(plain) = %q, want %q", got, Internal)
	}
	if Is(errors.New("plain"), NotFound) {
		t.Error("Is(plain, NotFound) = true, want false")
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(Storage, nil, "save"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Upstream, cause, "agent %s", "10.0.0.5")

	if got, want := err.Error(), "agent 10.0.0.5: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost from chain")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{AuthMissing, http.StatusUnauthorized},
		{AuthInvalid, http.StatusUnauthorized},
		{PermissionDenied, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{AlreadyExists, http.StatusConflict},
		{Busy, http.StatusConflict},
		{InvalidConfig, http.StatusBadRequest},
		{Upstream, http.StatusBadGateway},
		{Storage, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(New(tt.kind, "x")); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(plain) = %d, want 500", got)
	}
}
