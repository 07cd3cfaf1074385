package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.level.String()
			if result != tt.expected {
				t.Errorf("Expected %s, got: %s", tt.expected, result)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"Debug", DebugLevel},
		{"info", InfoLevel},
		{"INFO", InfoLevel},
		{"Info", InfoLevel},
		{"warn", WarnLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"ERROR", ErrorLevel},
		{"Error", ErrorLevel},
		{"invalid", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("Expected %v, got: %v", tt.expected, result)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger := New(InfoLevel)

	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	if logger.Level() != InfoLevel {
		t.Errorf("Expected level InfoLevel, got: %v", logger.Level())
	}
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(InfoLevel, buf)
	logger.SetLevel(ErrorLevel)

	if logger.Level() != ErrorLevel {
		t.Errorf("Expected level ErrorLevel, got: %v", logger.Level())
	}

	logger.Warn("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected no output below ERROR, got: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("Expected JSON format")
	}
	if ParseFormat("console") != FormatConsole {
		t.Error("Expected console format")
	}
	if ParseFormat("anything") != FormatConsole {
		t.Error("Expected console format as default")
	}
	if FormatJSON.String() != "json" || FormatConsole.String() != "console" {
		t.Error("Unexpected format names")
	}
}

func TestLogger_NilIsSafe(t *testing.T) {
	var logger *Logger

	logger.Debug("nothing")
	logger.Info("nothing", String("key", "value"))
	logger.SetLevel(DebugLevel)

	if logger.Enabled(ErrorLevel) {
		t.Error("Expected nil logger to be disabled")
	}
	if logger.With(String("k", "v")) != nil {
		t.Error("Expected nil child logger")
	}
}

func TestLogger_Nop(t *testing.T) {
	logger := Nop()
	logger.Error("discarded")
	if logger.Enabled(DebugLevel) {
		t.Error("Expected Nop logger to drop debug messages")
	}
}

func TestLogger_Debug(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(DebugLevel, buf)

	logger.Debug("test debug message")

	output := buf.String()
	if !strings.Contains(output, "DEBUG") {
		t.Errorf("Expected output to contain DEBUG, got: %s", output)
	}
	if !strings.Contains(output, "test debug message") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
}

func TestLogger_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(InfoLevel, buf)

	logger.Info("test info message")

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected output to contain INFO, got: %s", output)
	}
	if !strings.Contains(output, "test info message") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
}

func TestLogger_Warn(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(WarnLevel, buf)

	logger.Warn("test warn message")

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Errorf("Expected output to contain WARN, got: %s", output)
	}
	if !strings.Contains(output, "test warn message") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
}

func TestLogger_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(ErrorLevel, buf)

	logger.Error("test error message")

	output := buf.String()
	if !strings.Contains(output, "ERROR") {
		t.Errorf("Expected output to contain ERROR, got: %s", output)
	}
	if !strings.Contains(output, "test error message") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(WarnLevel, buf)

	// These should be filtered out
	logger.Debug("debug message")
	logger.Info("info message")

	// These should appear
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("Debug message should not appear at WARN level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should not appear at WARN level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should appear at WARN level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should appear at WARN level")
	}
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(InfoLevel, buf)

	logger.Info("test message",
		String("key1", "value1"),
		Int("key2", 42),
		Bool("key3", true),
	)

	output := buf.String()

	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, "key1=value1") {
		t.Errorf("Expected output to contain key1=value1, got: %s", output)
	}
	if !strings.Contains(output, "key2=42") {
		t.Errorf("Expected output to contain key2=42, got: %s", output)
	}
	if !strings.Contains(output, "key3=true") {
		t.Errorf("Expected output to contain key3=true, got: %s", output)
	}
}

func TestField_String(t *testing.T) {
	field := String("key", "value")

	if field.Key != "key" {
		t.Errorf("Expected key 'key', got: %s", field.Key)
	}
	if field.Value != "value" {
		t.Errorf("Expected value 'value', got: %v", field.Value)
	}
}

func TestField_Int(t *testing.T) {
	field := Int("count", 123)

	if field.Key != "count" {
		t.Errorf("Expected key 'count', got: %s", field.Key)
	}
	if field.Value != 123 {
		t.Errorf("Expected value 123, got: %v", field.Value)
	}
}

func TestField_Bool(t *testing.T) {
	field := Bool("enabled", true)

	if field.Key != "enabled" {
		t.Errorf("Expected key 'enabled', got: %s", field.Key)
	}
	if field.Value != true {
		t.Errorf("Expected value true, got: %v", field.Value)
	}
}

func TestField_Error(t *testing.T) {
	err := errors.New("test error")
	field := Error(err)

	if field.Key != "error" {
		t.Errorf("Expected key 'error', got: %s", field.Key)
	}
	if field.Value != "test error" {
		t.Errorf("Expected value 'test error', got: %v", field.Value)
	}
}

func TestField_Any(t *testing.T) {
	type customStruct struct {
		Name string
		Age  int
	}

	value := customStruct{Name: "test", Age: 30}
	field := Any("custom", value)

	if field.Key != "custom" {
		t.Errorf("Expected key 'custom', got: %s", field.Key)
	}
	if field.Value != value {
		t.Errorf("Expected value %v, got: %v", value, field.Value)
	}
}

func TestLogger_OutputFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(InfoLevel, buf)

	logger.Info("test message", String("key", "value"))

	output := buf.String()

	// Check format: timestamp level message key=value
	parts := strings.Fields(output)
	if len(parts) < 4 {
		t.Errorf("Expected at least 4 parts in output, got: %d", len(parts))
	}

	// Check that timestamp is present (first part should be RFC 3339 format)
	if len(parts[0]) < 10 {
		t.Errorf("Expected timestamp in first part, got: %s", parts[0])
	}

	// Check level
	if parts[1] != "INFO" {
		t.Errorf("Expected level INFO, got: %s", parts[1])
	}

	// Check message
	if parts[2] != "test" {
		t.Errorf("Expected message part 'test', got: %s", parts[2])
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithFormatOutput(InfoLevel, FormatJSON, buf)

	logger.Info("relay closed",
		String("pipe", "a=>b"),
		Int64("bytes", 1024),
		Duration("elapsed", 1500*time.Millisecond),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode JSON log line: %v (%s)", err, buf.String())
	}
	if entry["message"] != "relay closed" {
		t.Errorf("Expected message 'relay closed', got: %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level 'info', got: %v", entry["level"])
	}
	if entry["pipe"] != "a=>b" {
		t.Errorf("Expected pipe field, got: %v", entry["pipe"])
	}
	if entry["bytes"] != float64(1024) {
		t.Errorf("Expected bytes 1024, got: %v", entry["bytes"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithOutput(DebugLevel, buf).WithComponent("tunnel").With(String("tunnel", "x<=>y"))

	logger.Debug("leg closed")

	output := buf.String()
	if !strings.Contains(output, "component=tunnel") {
		t.Errorf("Expected component field, got: %s", output)
	}
	if !strings.Contains(output, "tunnel=x<=>y") {
		t.Errorf("Expected tunnel field, got: %s", output)
	}
}

func TestField_ErrorNil(t *testing.T) {
	field := Error(nil)
	if field.Value != "<nil>" {
		t.Errorf("Expected '<nil>', got: %v", field.Value)
	}
}
