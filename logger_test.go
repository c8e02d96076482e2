package subwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, keysAndValues))
}

func (l *recordingLogger) Debug(msg string, kv ...interface{}) { l.record("DEBUG", msg, kv...) }
func (l *recordingLogger) Info(msg string, kv ...interface{})  { l.record("INFO", msg, kv...) }
func (l *recordingLogger) Warn(msg string, kv ...interface{})  { l.record("WARN", msg, kv...) }
func (l *recordingLogger) Error(msg string, kv ...interface{}) { l.record("ERROR", msg, kv...) }

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func (l *recordingLogger) contains(msg string) bool {
	for _, line := range l.messages() {
		if strings.Contains(line, " "+msg+" ") {
			return true
		}
	}
	return false
}

func (l *recordingLogger) leaks(secret string) bool {
	for _, line := range l.messages() {
		if strings.Contains(line, secret) {
			return true
		}
	}
	return false
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	if config.Enabled {
		t.Error("Expected debug to be disabled by default")
	}
	if !config.LogRequests || !config.LogCache || !config.LogVersion || !config.LogAuth {
		t.Error("Expected every category selected by default")
	}
	if config.RequestIDGen == nil {
		t.Fatal("Expected RequestIDGen to be set")
	}

	id := config.RequestIDGen()
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+8 {
		t.Errorf("Unexpected request ID format %q", id)
	}
	if id == config.RequestIDGen() {
		t.Error("Expected unique request IDs")
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	logger.Info("Protocol version changed", "version", "1.13.0", "authScheme", "digest")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
	if entry["message"] != "Protocol version changed" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
	if entry["version"] != "1.13.0" || entry["authScheme"] != "digest" {
		t.Errorf("Expected key/value fields, got %v", entry)
	}
}

func TestZerologLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown", "n", 1)
	logger.Error("shown too")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines at warn level, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"warn"`) || !strings.Contains(lines[1], `"level":"error"`) {
		t.Errorf("Unexpected levels in %q", buf.String())
	}
}

func TestNewSimpleLogger(t *testing.T) {
	if NewSimpleLogger() == nil {
		t.Error("Expected a logger")
	}
}

func TestClientCacheLogging(t *testing.T) {
	logger := &recordingLogger{}
	client := New(
		WithServerURL("http://127.0.0.1:1"),
		WithCredentials("alice", "sesame"),
		WithNetworkState(NetworkStateFunc(func() bool { return false })),
		WithDebug(),
		WithLogger(logger),
	)
	if _, err := client.Get(context.Background(), "getGenres", nil); err == nil {
		t.Fatal("Expected offline miss")
	}
	if !logger.contains("Offline cache miss") {
		t.Errorf("Expected cache log, got %v", logger.messages())
	}
	if !logger.contains("Request failed") {
		t.Errorf("Expected failure log, got %v", logger.messages())
	}
}
