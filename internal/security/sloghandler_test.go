package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(r *Redactor) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler_Message(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(NewRedactor())
	logger.Info("sent: verification code is: 654321")

	if strings.Contains(buf.String(), "654321") {
		t.Errorf("code found in log output: %s", buf.String())
	}
}

func TestRedactingHandler_Attributes(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("super-secret-value")
	logger, buf := newTestLogger(r)

	logger.Info("test",
		"token", "super-secret-value",
		"safe", "visible",
		"error", errors.New("auth super-secret-value rejected"),
		slog.Group("req", "auth", "super-secret-value"),
	)

	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Errorf("secret found in attributes: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("safe value missing from output: %s", out)
	}
}

func TestRedactingHandler_WithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("persistent-secret")
	logger, buf := newTestLogger(r)

	logger.With("key", "persistent-secret").WithGroup("client").Info("line", "peer", "Jane_Doe")

	out := buf.String()
	if strings.Contains(out, "persistent-secret") {
		t.Errorf("bound secret found: %s", out)
	}
	if !strings.Contains(out, "client.peer=Jane_Doe") {
		t.Errorf("group missing: %s", out)
	}
}
