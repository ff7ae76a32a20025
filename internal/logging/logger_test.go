package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "famcalld.log")
	var console bytes.Buffer

	logger, err := newLogger(path, zapcore.AddSync(&console), zap.String("account", "main"), zap.String("user", "u1"))
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("call started", zap.String("session_id", "s1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]any{"msg": "call started", "account": "main", "user": "u1", "session_id": "s1"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
	if !strings.Contains(console.String(), "call started") {
		t.Errorf("console output = %q", console.String())
	}
}

func TestNewServiceTagsService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "famcall-push.log")
	logger, err := NewService(path, "push")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hub listening")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"service":"push"`) {
		t.Errorf("log = %s, want service field", data)
	}
}
