package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origOut := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(origOut)
		log.SetFlags(origFlags)
		logFormatOnce = sync.Once{}
		logAsJSON = false
	})
	return &buf
}

func TestInfoTextFormat(t *testing.T) {
	logFormatOnce = sync.Once{}
	logAsJSON = false
	buf := captureLog(t)

	Info("editor", "hello", "key", "val")
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "[EDITOR] hello") || !strings.Contains(got, "key=val") {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestErrorTextFormat(t *testing.T) {
	logFormatOnce = sync.Once{}
	logAsJSON = false
	buf := captureLog(t)

	Error("gateway", "save failed", "error", errors.New("boom"))
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "[GATEWAY] ERROR save failed") || !strings.Contains(got, "error=boom") {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestErrorJSONFormat(t *testing.T) {
	logFormatOnce = sync.Once{}
	logAsJSON = false
	t.Setenv(envLogFormat, "json")
	buf := captureLog(t)

	Error("gateway", "boom", "code", 500, "error", errors.New("down"))
	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected json output, got: %s", line)
	}
	if payload["level"] != "ERROR" || payload["component"] != "gateway" || payload["msg"] != "boom" {
		t.Fatalf("unexpected json payload: %#v", payload)
	}
	if payload["error"] != "down" {
		t.Fatalf("expected error string field, got %#v", payload["error"])
	}
}

func TestDebugRequiresEnv(t *testing.T) {
	logFormatOnce = sync.Once{}
	logAsJSON = false
	buf := captureLog(t)

	Debug("catalog", "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no debug output, got %q", buf.String())
	}
	t.Setenv("STAGEFLOW_DEBUG", "1")
	Debug("catalog", "shown")
	if !strings.Contains(buf.String(), "DEBUG shown") {
		t.Fatalf("expected debug output, got %q", buf.String())
	}
}

func TestFormatFields(t *testing.T) {
	out := formatFields("a", 1, "b")
	if !strings.Contains(out, "a=1") || !strings.Contains(out, "b=(missing)") {
		t.Fatalf("unexpected fields: %s", out)
	}
	out = formatFields()
	if out != "" {
		t.Fatalf("expected empty output")
	}
}

func TestToString(t *testing.T) {
	if got := toString(" value\n"); got != " value\n" {
		t.Fatalf("unexpected string: %s", got)
	}
	if got := toString(123); got != "123" {
		t.Fatalf("unexpected non-string conversion: %s", got)
	}
}
