package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sightline/pkg/config"
)

func TestInit(t *testing.T) {
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "nested", "requests.log")

	// A previous run's log is rotated away.
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	old, err := os.ReadFile(serverLog + ".old")
	if err != nil || string(old) != "previous run\n" {
		t.Errorf("expected rotated .old file, got %q (%v)", old, err)
	}

	slog.Info("LOS computed", "visible", true)
	RequestLogger.Info("Request", "path", "/api/los")
	cleanup()

	server, _ := os.ReadFile(serverLog)
	if !strings.Contains(string(server), "LOS computed") {
		t.Errorf("server log missing record: %q", server)
	}
	requests, _ := os.ReadFile(requestLog)
	if !strings.Contains(string(requests), "/api/los") {
		t.Errorf("request log missing record: %q", requests)
	}
	if strings.Contains(string(server), "/api/los") {
		t.Error("request records leaked into server log")
	}

	if !strings.Contains(RecentLogs.Last(), "LOS computed") {
		t.Errorf("recent logs missed INFO record: %q", RecentLogs.Last())
	}
}

func TestInit_JSONRequests(t *testing.T) {
	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })

	tempDir := t.TempDir()
	requestLog := filepath.Join(tempDir, "requests.log")
	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: filepath.Join(tempDir, "server.log"), Level: "TRACE"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO", Format: config.LogFormatJSON},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	RequestLogger.Info("Request", "path", "/api/los")
	Trace(nil, "LOS sample", "sample", 3)
	cleanup()

	requests, _ := os.ReadFile(requestLog)
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(requests), &rec); err != nil {
		t.Fatalf("request log is not JSON: %q (%v)", requests, err)
	}
	if rec["path"] != "/api/los" {
		t.Errorf("path = %v, want /api/los", rec["path"])
	}

	server, _ := os.ReadFile(filepath.Join(tempDir, "server.log"))
	if !strings.Contains(string(server), "level=TRACE") {
		t.Errorf("server log missing TRACE record: %q", server)
	}
}

func TestInit_BadPath(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: filepath.Join(blocker, "server.log")},
		Requests: config.LogSettings{Path: filepath.Join(tempDir, "requests.log")},
	}
	if _, err := Init(cfg); err == nil {
		t.Error("expected error when log directory is a file")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"TRACE", LevelTrace},
		{"warning", slog.LevelWarn},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	newLogger := func(level slog.Level) *slog.Logger {
		buf.Reset()
		return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLevel}))
	}

	Trace(newLogger(slog.LevelDebug), "LOS sample", "sample", 1)
	if buf.Len() != 0 {
		t.Errorf("DEBUG logger emitted trace record: %q", buf.String())
	}

	Trace(newLogger(LevelTrace), "LOS sample", "sample", 1)
	if !strings.Contains(buf.String(), "level=TRACE") || !strings.Contains(buf.String(), "sample=1") {
		t.Errorf("unexpected trace output: %q", buf.String())
	}
}

func TestRecent(t *testing.T) {
	r := NewRecent(3)
	if r.Last() != "" || r.Lines(5) != nil {
		t.Error("expected empty buffer")
	}

	_, _ = r.Write([]byte("first\n"))
	_, _ = r.Write([]byte("second\nthird\n"))
	if got := r.Last(); got != "third" {
		t.Errorf("Last() = %q, want %q", got, "third")
	}
	if diff := cmp.Diff([]string{"second", "third"}, r.Lines(2)); diff != "" {
		t.Errorf("Lines(2) mismatch (-want +got):\n%s", diff)
	}

	// Wraps and drops the oldest.
	_, _ = r.Write([]byte("fourth\n"))
	if diff := cmp.Diff([]string{"second", "third", "fourth"}, r.Lines(10)); diff != "" {
		t.Errorf("Lines(10) mismatch (-want +got):\n%s", diff)
	}
	if r.Lines(0) != nil {
		t.Error("Lines(0) should be nil")
	}
}
