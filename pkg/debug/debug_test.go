package debug

import (
	"bytes"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// saveAndRestoreState is a helper to save and restore debug state for testing
func saveAndRestoreState(t *testing.T) func() {
	t.Helper()
	originalDebugEnv := os.Getenv("DEBUG")
	originalLogLevelEnv := os.Getenv("LOG_LEVEL")

	mu.Lock()
	originalEnabled := isEnabled
	originalLevel := currentLevel
	mu.Unlock()

	return func() {
		os.Setenv("DEBUG", originalDebugEnv)
		os.Setenv("LOG_LEVEL", originalLogLevelEnv)
		mu.Lock()
		isEnabled = originalEnabled
		currentLevel = originalLevel
		mu.Unlock()
	}
}

// captureOutput swaps the package logger for one writing into a buffer
func captureOutput(t *testing.T) (*bytes.Buffer, func()) {
	t.Helper()
	var buf bytes.Buffer

	mu.Lock()
	originalLogger := logger
	logger = log.New(&buf, "", 0)
	mu.Unlock()

	return &buf, func() {
		mu.Lock()
		logger = originalLogger
		mu.Unlock()
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelDebug)
	assert.Equal(t, LogLevel(1), LevelInfo)
	assert.Equal(t, LogLevel(2), LevelWarning)
	assert.Equal(t, LogLevel(3), LevelError)

	assert.Equal(t, "DEBUG", levelNames[LevelDebug])
	assert.Equal(t, "INFO", levelNames[LevelInfo])
	assert.Equal(t, "WARNING", levelNames[LevelWarning])
	assert.Equal(t, "ERROR", levelNames[LevelError])
}

func TestReinitialize(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	tests := []struct {
		name          string
		debugEnv      string
		logLevelEnv   string
		expectEnabled bool
		expectLevel   LogLevel
	}{
		{
			name:          "debug disabled by default",
			debugEnv:      "",
			logLevelEnv:   "",
			expectEnabled: false,
			expectLevel:   LevelInfo,
		},
		{
			name:          "debug enabled with true",
			debugEnv:      "true",
			logLevelEnv:   "",
			expectEnabled: true,
			expectLevel:   LevelInfo,
		},
		{
			name:          "debug enabled with 1",
			debugEnv:      "1",
			logLevelEnv:   "",
			expectEnabled: true,
			expectLevel:   LevelInfo,
		},
		{
			name:          "debug level set to WARNING",
			debugEnv:      "true",
			logLevelEnv:   "WARNING",
			expectEnabled: true,
			expectLevel:   LevelWarning,
		},
		{
			name:          "debug level case insensitive",
			debugEnv:      "true",
			logLevelEnv:   "error",
			expectEnabled: true,
			expectLevel:   LevelError,
		},
		{
			name:          "invalid log level defaults to INFO",
			debugEnv:      "true",
			logLevelEnv:   "INVALID",
			expectEnabled: true,
			expectLevel:   LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("DEBUG", tt.debugEnv)
			os.Setenv("LOG_LEVEL", tt.logLevelEnv)

			Reinitialize()

			assert.Equal(t, tt.expectEnabled, IsDebugEnabled())
			assert.Equal(t, tt.expectLevel, GetLogLevel())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LevelWarning, level)

	_, ok = ParseLevel("noise")
	assert.False(t, ok)
}

func TestLogLevelFiltering(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf, restoreLogger := captureOutput(t)
	defer restoreLogger()

	SetEnabled(true)

	tests := []struct {
		name         string
		currentLevel LogLevel
		messages     []struct {
			fn     func(string, ...interface{})
			msg    string
			expect bool
		}
	}{
		{
			name:         "INFO level filters DEBUG",
			currentLevel: LevelInfo,
			messages: []struct {
				fn     func(string, ...interface{})
				msg    string
				expect bool
			}{
				{Debug, "debug msg", false},
				{Info, "info msg", true},
				{Warning, "warning msg", true},
				{Error, "error msg", true},
			},
		},
		{
			name:         "ERROR level only shows errors",
			currentLevel: LevelError,
			messages: []struct {
				fn     func(string, ...interface{})
				msg    string
				expect bool
			}{
				{Debug, "debug msg", false},
				{Info, "info msg", false},
				{Warning, "warning msg", false},
				{Error, "error msg", true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLogLevel(tt.currentLevel)

			for _, msg := range tt.messages {
				buf.Reset()
				msg.fn(msg.msg)
				output := buf.String()

				if msg.expect {
					assert.NotEmpty(t, output, "Expected output for: %s", msg.msg)
					assert.Contains(t, output, msg.msg)
				} else {
					assert.Empty(t, output, "Expected no output for: %s", msg.msg)
				}
			}
		})
	}
}

func TestLogWithFields(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf, restoreLogger := captureOutput(t)
	defer restoreLogger()

	SetEnabled(true)
	SetLogLevel(LevelDebug)

	Log("sweep finished", map[string]interface{}{"tasks_reclaimed": 3})
	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "sweep finished")
	assert.Contains(t, output, "tasks_reclaimed=3")

	buf.Reset()
	Log("plain message", nil)
	assert.Contains(t, buf.String(), "plain message")
}

func TestLogOutputFormat(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf, restoreLogger := captureOutput(t)
	defer restoreLogger()

	SetEnabled(true)
	SetLogLevel(LevelDebug)

	Info("test message %d", 42)
	output := buf.String()

	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "test message 42")
	assert.Regexp(t, `\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\]`, output) // Timestamp
	assert.Regexp(t, `\[\S+:\d+\]`, output)                                   // File:line
}

func TestConcurrentLogging(t *testing.T) {
	restore := saveAndRestoreState(t)
	defer restore()

	buf, restoreLogger := captureOutput(t)
	defer restoreLogger()

	SetEnabled(true)
	SetLogLevel(LevelDebug)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			Debug("concurrent debug %d", id)
			Info("concurrent info %d", id)
			Warning("concurrent warning %d", id)
			Error("concurrent error %d", id)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, 40, len(lines)) // 4 messages per goroutine * 10 goroutines
}

func TestSanitizeHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Api-Key", "secret-key-value")
	headers.Set("Authorization", "Bearer token")
	headers.Set("Content-Type", "application/json")

	sanitized := SanitizeHeaders(headers)

	assert.NotContains(t, sanitized, "secret-key-value")
	assert.NotContains(t, sanitized, "Bearer token")
	assert.Contains(t, sanitized, "[REDACTED:api_key:len=16]")
	assert.Contains(t, sanitized, "[REDACTED:authorization:len=12]")
	assert.Contains(t, sanitized, "application/json")
}

func BenchmarkLogDisabled(b *testing.B) {
	mu.Lock()
	originalEnabled := isEnabled
	isEnabled = false
	mu.Unlock()
	defer func() {
		mu.Lock()
		isEnabled = originalEnabled
		mu.Unlock()
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark message %d", i)
	}
}

func BenchmarkLogFiltered(b *testing.B) {
	mu.Lock()
	originalEnabled := isEnabled
	originalLevel := currentLevel
	isEnabled = true
	currentLevel = LevelError // Filter out INFO messages
	mu.Unlock()
	defer func() {
		mu.Lock()
		isEnabled = originalEnabled
		currentLevel = originalLevel
		mu.Unlock()
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark message %d", i)
	}
}
