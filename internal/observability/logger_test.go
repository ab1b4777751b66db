package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level", "")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "outbox.log")
	logger, err := NewLogger("info", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("submission saved for later", zap.String("recordKey", "inc-1-DADOS ACIDENTE"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "submission saved for later") {
		t.Fatalf("log file = %q, want message", string(data))
	}
	if !strings.Contains(string(data), `"recordKey":"inc-1-DADOS ACIDENTE"`) {
		t.Fatalf("log file = %q, want recordKey field", string(data))
	}
}

func TestIncidentID_ContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithIncidentID(context.Background(), "1678886400000-q1w2e3r4t")
	incidentID, ok := IncidentIDFromContext(ctx)
	if !ok {
		t.Fatal("expected incident id to exist")
	}
	if incidentID != "1678886400000-q1w2e3r4t" {
		t.Fatalf("incident id=%q", incidentID)
	}
}

func TestIncidentID_MissingValue(t *testing.T) {
	t.Parallel()

	_, ok := IncidentIDFromContext(context.Background())
	if ok {
		t.Fatal("expected incident id to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithIncidentID(context.Background(), "inc-789")
	loggerWithContext := WithContextLogger(baseLogger, ctx)
	loggerWithContext.Info("message with incident")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if got := entries[0].ContextMap()["incidentId"]; got != "inc-789" {
		t.Fatalf("incidentId=%v, want=%q", got, "inc-789")
	}
}

func TestWithContextLogger_NoIncidentID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	WithContextLogger(baseLogger, context.Background()).Info("message without incident")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}
	if _, ok := entries[0].ContextMap()["incidentId"]; ok {
		t.Fatal("expected incidentId field to be absent")
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}
