package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: ComponentApp, Output: &buf}), &buf
}

func TestLogger_ComponentTag(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger.WithComponent(ComponentLedger).Info("state computed", FieldMonth, "2025-03")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "month=2025-03") {
		t.Errorf("missing fields in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered at info level: %q", out)
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentDistribution).
		WithDistribution("rule", "priority", "r1", 1500, 2).
		WithError(nil).
		WithClientID("phone")

	if _, ok := fields[FieldError]; ok {
		t.Error("nil error should not add a field")
	}
	if fields[FieldRuleID] != "r1" || fields[FieldAmountCents] != int64(1500) || fields[FieldClientID] != "phone" {
		t.Errorf("unexpected fields %v", fields)
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice() length = %d", got)
	}

	manual := NewFields().WithDistribution("manual", "equal", "", 100, 1)
	if _, ok := manual[FieldRuleID]; ok {
		t.Error("empty rule id should be omitted")
	}
}

func TestMiddleware_RequestScopedLogger(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	handler := Middleware(logger)(
		RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				FromContext(r.Context()).Info("inside handler")
			})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/envelopes", nil))
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("expected request id in %q", buf.String())
	}

	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Errorf("fallback component = %q", l.Component())
	}
}

func TestStructuredLogger_LogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{503, "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, buf := newBufferLogger(slog.LevelDebug)
			sl := NewStructuredLogger(logger)
			r := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			sl.LogHTTPEnd(context.Background(), r, tt.status, 3, "10.0.0.1")
			if !strings.Contains(buf.String(), tt.level) || !strings.Contains(buf.String(), "component=http") {
				t.Errorf("unexpected record %q", buf.String())
			}
		})
	}
}

func TestStructuredLogger_LogError(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	NewStructuredLogger(logger).LogError(context.Background(), "dismiss failed", errors.New("disk full"),
		ComponentNotification, OpDismiss, nil)
	out := buf.String()
	if !strings.Contains(out, `error="disk full"`) || !strings.Contains(out, "operation=dismiss") {
		t.Errorf("unexpected record %q", out)
	}
}
