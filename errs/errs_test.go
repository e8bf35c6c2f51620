package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesOpCodeAndCause(t *testing.T) {
	err := New(
		"eventloop/run",
		CodeMisuse,
		WithMessage("loop already running"),
		WithCause(errors.New("concurrent Run detected")),
	)

	out := err.Error()
	if !strings.Contains(out, "op=eventloop/run") {
		t.Fatalf("expected op marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=misuse") {
		t.Fatalf("expected code marker in error string: %s", out)
	}
	if !strings.Contains(out, `message="loop already running"`) {
		t.Fatalf("expected message in error string: %s", out)
	}
	if !strings.Contains(out, `cause="concurrent Run detected"`) {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithMessageTrims(t *testing.T) {
	err := New("eventloop/subscribe", CodeInvalid, WithMessage("  nil handler  "))
	if err.Message != "nil handler" {
		t.Fatalf("expected trimmed message, got %q", err.Message)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := New("eventloop/schedule", CodeInvalid, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
}

func TestIsCodeMatchesByCode(t *testing.T) {
	err := New("eventloop/cancel", CodeNotFound)
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected IsCode to match CodeNotFound")
	}
	if IsCode(err, CodeInvalid) {
		t.Fatalf("did not expect IsCode to match CodeInvalid")
	}
	if IsCode(errors.New("plain"), CodeNotFound) {
		t.Fatalf("did not expect plain error to match IsCode")
	}
}

func TestErrorsIsComparesCodeNotIdentity(t *testing.T) {
	sentinel := New("", CodeClosed)
	err := New("eventloop/publish", CodeClosed, WithMessage("loop stopped"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match by code")
	}
}

func TestNilReceiverErrorString(t *testing.T) {
	var e *E
	if e.Error() != "<nil>" {
		t.Fatalf("expected <nil> for nil receiver, got %q", e.Error())
	}
}
