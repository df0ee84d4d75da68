package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// TestParseLogLevel tests log level parsing including aliases
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"DEBUG", DEBUG, false},
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"WARN", WARN, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"verbose", INFO, true},
		{"", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestLoggerLevelFiltering verifies messages below the level are suppressed
func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  WARN,
		Output: &buf,
		Format: FormatText,
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("suppressed levels leaked into output: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("enabled levels missing from output: %s", output)
	}
}

// TestLoggerJSONFormat verifies JSON entries parse and carry fields
func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  INFO,
		Output: &buf,
		Format: FormatJSON,
	})

	logger.Info("cache warmed", map[string]interface{}{"assets": 3})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Message != "cache warmed" {
		t.Errorf("unexpected message: %s", entry.Message)
	}
	if entry.Fields["assets"] != float64(3) {
		t.Errorf("expected assets field, got %v", entry.Fields)
	}
}

// TestLoggerContextFields verifies WithComponent and WithField chain
// without mutating the parent
func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  INFO,
		Output: &buf,
		Format: FormatText,
	})

	child := logger.WithComponent("session-cache").WithField("session", "abc")
	child.Info("entry written")

	output := buf.String()
	if !strings.Contains(output, "component=session-cache") {
		t.Errorf("missing component field: %s", output)
	}
	if !strings.Contains(output, "session=abc") {
		t.Errorf("missing chained field: %s", output)
	}

	buf.Reset()
	logger.Info("parent message")
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("parent logger inherited child fields: %s", buf.String())
	}
}

// TestLoggerSetLevel verifies runtime level changes take effect
func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  ERROR,
		Output: &buf,
		Format: FormatText,
	})

	logger.Info("before")
	logger.SetLevel(DEBUG)
	logger.Info("after")

	if strings.Contains(buf.String(), "before") {
		t.Error("message logged below configured level")
	}
	if !strings.Contains(buf.String(), "after") {
		t.Error("message missing after level change")
	}
	if logger.GetLevel() != DEBUG {
		t.Errorf("GetLevel() = %v, want DEBUG", logger.GetLevel())
	}
}

// TestLoggerFormatted verifies the printf-style variants
func TestLoggerFormatted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  DEBUG,
		Output: &buf,
		Format: FormatText,
	})

	logger.Infof("evicted %d assets at %s pressure", 4, "high")

	if !strings.Contains(buf.String(), "evicted 4 assets at high pressure") {
		t.Errorf("formatted message missing: %s", buf.String())
	}
}
