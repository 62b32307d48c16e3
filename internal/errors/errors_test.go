package errors

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeapErrorWrapsCause(t *testing.T) {
	cause := errors.New("invalid object id")
	err := NewHeapError(cause, "main.loaf", 3, 1)

	if err.Type != HeapError {
		t.Fatalf("expected HeapError, got %v", err.Type)
	}
	if err.Cause() != cause {
		t.Fatalf("expected Cause() to return the wrapped error")
	}
	if !strings.Contains(err.Error(), "invalid object id") {
		t.Fatalf("expected rendered message to include the cause, got %q", err.Error())
	}
}

func TestRenderOmitsColorForNonTerminalWriter(t *testing.T) {
	var buf bytes.Buffer
	err := NewRuntimeError("boom", "main.loaf", 1, 1)
	Render(&buf, err)

	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("expected no ANSI color codes for a non-terminal writer, got %q", buf.String())
	}
}
