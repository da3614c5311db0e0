package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})

	logger.Debug("hidden")
	logger.Info("Audit event stored", FieldBusinessID, "b-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec[FieldComponent] != ComponentWorker || rec[FieldBusinessID] != "b-1" {
		t.Fatalf("record = %v", rec)
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "text", Component: ComponentApp, Output: &buf}).
		With(FieldRequestID, "req_1").
		WithComponent(ComponentHTTP)

	logger.Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=http") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "request_id=req_1") {
		t.Fatalf("attributes lost: %q", out)
	}
	if logger.Component() != ComponentHTTP {
		t.Fatalf("component = %q", logger.Component())
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithTenant("u-1", "").
		WithError(errors.New("boom"), ErrorTypeDependency).
		WithHTTPRequest(http.MethodGet, "/readyz", "", "", "")

	if f[FieldUserID] != "u-1" || f[FieldError] != "boom" || f[FieldErrorType] != ErrorTypeDependency {
		t.Fatalf("fields = %v", f)
	}
	for _, k := range []string{FieldBusinessID, FieldQuery, FieldUserAgent} {
		if _, ok := f[k]; ok {
			t.Errorf("empty %s should be skipped", k)
		}
	}
	if len(NewFields().WithError(nil, ErrorTypeInternal)) != 0 {
		t.Errorf("nil error should add nothing")
	}
	if got := len(f.ToSlice()); got != len(f)*2 {
		t.Errorf("slice length = %d", got)
	}
}

func TestMiddlewareAndFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("default logger should report an unknown component")
	}

	root := New(Config{Component: ComponentApp, Output: &bytes.Buffer{}})
	var got *Logger
	h := Middleware(root)(ComponentMiddleware(ComponentDashboard)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = FromContext(r.Context()) })))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentDashboard {
		t.Fatalf("logger = %+v", got)
	}
}
