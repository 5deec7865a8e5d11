package log

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	testLogFile := filepath.Join(t.TempDir(), "pkgbind.log")

	InitLogger(LogConfig{
		Filename:   testLogFile,
		MaxSize:    1,
		MaxBackups: 3,
		MaxAge:     1,
		Level:      zapcore.DebugLevel,
	})

	Logger.Debug("This is a debug message")
	Logger.Info("This is an info message")
	Logger.Warn("This is a warning message")
	Logger.Error("This is an error message")
	Close()

	file, err := os.Open(testLogFile)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var logLines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		logLines = append(logLines, scanner.Text())
	}

	if len(logLines) != 4 {
		t.Fatalf("Expected 4 log lines, got %d", len(logLines))
	}

	expectedMessages := []string{"debug message", "info message", "warning message", "error message"}
	for i, msg := range expectedMessages {
		if !strings.Contains(strings.ToLower(logLines[i]), msg) {
			t.Errorf("Log line %d does not contain expected message '%s'", i, msg)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	testLogFile := filepath.Join(t.TempDir(), "warn.log")

	if err := Init(testLogFile, "warn"); err != nil {
		t.Fatal(err)
	}
	Logger.Info("dropped")
	Logger.Warn("kept")
	Close()

	data, err := os.ReadFile(testLogFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Errorf("info line written at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Errorf("warn line missing")
	}
}

func TestInitBadLevel(t *testing.T) {
	if err := Init("", "loud"); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Filename != "" {
		t.Errorf("Expected console logging by default, got '%s'", config.Filename)
	}
	if config.Level != zapcore.InfoLevel {
		t.Errorf("Expected default Level InfoLevel, got %v", config.Level)
	}
	if !config.Console {
		t.Errorf("Expected default Console to be true")
	}
}
