// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	logger := New("test")
	logger.SetWriter(buf)
	logger.SetLevel(DEBUG)
	logger.SetColorize(false)
	return logger
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("scanned %d layers", 12)

	output := buf.String()
	if !strings.Contains(output, "[INFO ]") {
		t.Errorf("expected INFO level, got: %s", output)
	}
	if !strings.Contains(output, "test: scanned 12 layers") {
		t.Errorf("expected prefixed message, got: %s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("expected no ANSI codes, got: %q", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(WARN)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG and INFO to be filtered, got: %s", buf.String())
	}

	logger.Warn("warn message")
	logger.Error("error message")
	output := buf.String()
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("expected WARN and ERROR to pass, got: %s", output)
	}
	if logger.GetLevel() != WARN {
		t.Errorf("GetLevel = %v, want WARN", logger.GetLevel())
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.Info("json test")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v, output: %s", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got: %s", entry.Level)
	}
	if entry.Logger != "test" {
		t.Errorf("expected logger 'test', got: %s", entry.Logger)
	}
	if entry.Message != "json test" {
		t.Errorf("expected message 'json test', got: %s", entry.Message)
	}
	if entry.Fields != nil {
		t.Errorf("expected no fields, got: %v", entry.Fields)
	}
}

func TestLoggerFieldsText(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.WithFields(Fields{"file": "part.gcode", "layers": 3}).Info("processed")

	output := buf.String()
	if !strings.Contains(output, "{file=part.gcode, layers=3}") {
		t.Errorf("expected sorted fields, got: %s", output)
	}
}

func TestEntryChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.
		WithField("a", 1).
		WithField("b", 2).
		WithError(errors.New("boom")).
		Warn("chained %s", "entry")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(entry.Fields) != 3 {
		t.Errorf("expected 3 fields, got %d: %v", len(entry.Fields), entry.Fields)
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("expected error field, got: %v", entry.Fields["error"])
	}
	if entry.Message != "chained entry" {
		t.Errorf("expected formatted message, got: %s", entry.Message)
	}
}

func TestEntryDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	base := logger.WithField("a", 1)
	_ = base.WithField("b", 2)
	base.Info("base")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(entry.Fields) != 1 {
		t.Errorf("expected base entry to keep one field, got %v", entry.Fields)
	}
}

func TestWithPrefixSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := newTestLogger(&buf)
	child := parent.WithPrefix("child")

	parent.SetLevel(ERROR)
	child.Info("filtered")
	if buf.Len() != 0 {
		t.Errorf("level change on parent should apply to child, got: %s", buf.String())
	}

	child.Error("kept")
	if !strings.Contains(buf.String(), "child: kept") {
		t.Errorf("expected prefix 'child:', got: %s", buf.String())
	}
	if child.Prefix() != "child" {
		t.Errorf("Prefix() = %q", child.Prefix())
	}
}

func TestLoggerCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetCaller(true)

	logger.Info("caller test")
	logger.WithField("k", "v").Info("entry caller test")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, "logger_test.go:") {
			t.Errorf("expected caller info 'logger_test.go:', got: %s", line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{" warn ", WARN},
		{"WARNING", WARN},
		{"error", ERROR},
		{"invalid", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected JSON format")
	}
	if ParseFormat("text") != FormatText || ParseFormat("xml") != FormatText {
		t.Error("expected text format fallback")
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("ADAPTIVE_MESH_LOG_LEVEL", "error")
	t.Setenv("ADAPTIVE_MESH_LOG_FORMAT", "json")
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	logger := New("env")
	logger.SetWriter(&buf)
	ConfigureFromEnv(logger)

	if logger.GetLevel() != ERROR {
		t.Errorf("expected ERROR level from env, got %v", logger.GetLevel())
	}
	logger.Error("from env")
	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output from env config: %v", err)
	}
}

func TestSetupWritesFile(t *testing.T) {
	t.Setenv("ADAPTIVE_MESH_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "adaptive-mesh.log")

	logger, closer, err := Setup("setup", Options{Level: "debug", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("written to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "setup: written to file") {
		t.Errorf("log file missing message: %s", data)
	}
	if GetLogger("other").out != logger.out {
		t.Error("Setup should install the default logger")
	}
}

func TestNewFileWriterRequiresName(t *testing.T) {
	if _, err := NewFileWriter(Options{}); err == nil {
		t.Error("expected error for empty file name")
	}
}

func TestIsTerminalRegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "tty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil file reported as terminal")
	}
}

func BenchmarkLoggerText(b *testing.B) {
	var buf bytes.Buffer
	logger := New("bench")
	logger.SetWriter(&buf)
	logger.SetColorize(false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		logger.Info("benchmark message %d", i)
	}
}

func BenchmarkLoggerFiltered(b *testing.B) {
	var buf bytes.Buffer
	logger := New("bench")
	logger.SetWriter(&buf)
	logger.SetLevel(ERROR)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("this should be filtered")
	}
}
