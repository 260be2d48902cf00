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

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentExpense).
		WithOperation(OpCreate).
		WithUserID("").
		WithExpenseID("e1").
		WithError(errors.New("boom")).
		WithError(nil)
	if f[FieldComponent] != ComponentExpense || f[FieldExpenseID] != "e1" || f[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if _, ok := f[FieldUserID]; ok {
		t.Fatal("empty user id should be skipped")
	}
	if got := len(f.ToSlice()); got != len(f)*2 {
		t.Fatalf("ToSlice len = %d", got)
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Component: "test", Output: &buf})
	l.InfoContext(context.Background(), "hello", "k", "v")
	out := buf.String()
	if !strings.Contains(out, `"component":"test"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestAccessLogUsesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})
	h := AccessLog(func(*http.Request) string { return "10.0.0.1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req = req.WithContext(WithLogger(req.Context(), base.With(FieldRequestID, "req-1")))
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "status_code=418", "level=WARN", "client_ip=10.0.0.1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}
