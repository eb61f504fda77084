package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"unknown falls back to info", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level %s, got %s", LevelInfo, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got '%s'", cfg.Output)
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.DebugProbe("probe failed", "10.0.0.1", 22, "failure", "refused")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "probe failed" {
		t.Errorf("Unexpected msg %v", entry["msg"])
	}
	if entry["ip"] != "10.0.0.1" {
		t.Errorf("Unexpected ip %v", entry["ip"])
	}
	if entry["port"] != float64(22) {
		t.Errorf("Unexpected port %v", entry["port"])
	}
	if entry["failure"] != "refused" {
		t.Errorf("Unexpected failure %v", entry["failure"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatText}, &buf)

	logger.DebugProbe("hidden", "127.0.0.1", 80)
	if buf.Len() != 0 {
		t.Errorf("Debug output should be filtered at info level, got %q", buf.String())
	}

	logger.InfoScan("scan started", "example.com", "ip", "93.184.216.34")
	out := buf.String()
	if !strings.Contains(out, "scan started") || !strings.Contains(out, "target=example.com") {
		t.Errorf("Unexpected output %q", out)
	}
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf)

	logger.ErrorScan("resolution failed", "bad.invalid", errors.New("no such host"))
	logger.InfoReport("report saved", "/tmp/scan_report.txt")
	logger.ErrorReport("report failed", "/tmp/x.csv", errors.New("disk full"))
	logger.InfoDatabase("report persisted", "id", 7)
	logger.ErrorDatabase("insert failed", errors.New("boom"))
	logger.InfoServer("listening", "addr", ":8080")

	out := buf.String()
	for _, want := range []string{
		"error=\"no such host\"",
		"component=report",
		"path=/tmp/scan_report.txt",
		"error=\"disk full\"",
		"component=database",
		"component=api",
		"addr=:8080",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelInfo, Format: FormatText}, &buf).
		WithComponent("scanner").
		WithSessionID("abc")

	logger.Info("hello")
	out := buf.String()
	if !strings.Contains(out, "component=scanner") || !strings.Contains(out, "session_id=abc") {
		t.Errorf("Expected component and session fields, got %q", out)
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scanner.log")
	logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: path})
	if err != nil {
		t.Fatalf("Failed to create file logger: %v", err)
	}
	logger.Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("Log file missing entry: %q", string(data))
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelDebug, Format: FormatText}, &buf))

	Info("info message")
	DebugProbe("probe", "127.0.0.1", 1)
	InfoServer("server")

	out := buf.String()
	for _, want := range []string{"info message", "port=1", "component=api"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
}
