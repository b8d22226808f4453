package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{InvalidArgument, 400},
		{NotFound, 404},
		{Conflict, 409},
		{Busy, 429},
		{UnsupportedFormat, 415},
		{CorruptFile, 422},
		{Timeout, 504},
		{IOError, 500},
		{Internal, 500},
	}

	for _, c := range cases {
		err := &Error{Code: c.code, Message: "boom"}
		if got := err.HTTPStatus(); got != c.want {
			t.Errorf("Code %s: HTTPStatus() = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IOError, cause, "writing cache entry")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}

	want := fmt.Sprintf("%s: writing cache entry: disk full", IOError)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NotFoundf("track %s", "abc")); got != NotFound {
		t.Errorf("CodeOf(NotFoundf) = %s, want %s", got, NotFound)
	}

	if got := CodeOf(errors.New("plain")); got != Internal {
		t.Errorf("CodeOf(plain error) = %s, want %s", got, Internal)
	}

	wrapped := fmt.Errorf("context: %w", Busyf("task manager at capacity"))
	if !Is(wrapped, Busy) {
		t.Errorf("Is(wrapped, Busy) = false, want true")
	}
}
