package log_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwantia/chunkfs/log"
)

func fileLogger(t *testing.T, level log.LogLevel) (*log.Logger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chunkfs.log")
	return log.NewLogger("chunkfs", level, path, true), path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading log file failed: %v", err)
	}

	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, path := fileLogger(t, log.Debug)
	logger.JSON = true

	logger.Named("transfer").Info("uploaded chunk %d", 7)

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("Expected one log line, got %d", len(lines))
	}

	var entry struct {
		Timestamp string `json:"timestamp"`
		Level     string `json:"level"`
		Service   string `json:"service"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Expected level INFO, got %q", entry.Level)
	}
	if entry.Service != "chunkfs/transfer" {
		t.Errorf("Expected service chunkfs/transfer, got %q", entry.Service)
	}
	if entry.Message != "uploaded chunk 7" {
		t.Errorf("Expected formatted message, got %q", entry.Message)
	}
	if entry.Timestamp == "" {
		t.Error("Expected a timestamp")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	logger, path := fileLogger(t, log.Warn)
	logger.JSON = true

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("Expected two log lines, got %d: %v", len(lines), lines)
	}
}

func TestLogger_NamedInheritsJSON(t *testing.T) {
	logger, _ := fileLogger(t, log.Debug)
	logger.JSON = true

	sub := logger.Named("cache")
	if !sub.JSON {
		t.Error("Expected sublogger to inherit JSON mode")
	}
	if sub.Level != log.Debug {
		t.Errorf("Expected sublogger to inherit level, got %v", sub.Level)
	}
}
