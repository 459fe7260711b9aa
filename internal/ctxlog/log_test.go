package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected root logger for empty context")
	}

	logger := logrus.New().WithField("k", "v")
	ctx := Context(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Errorf("FromContext returned %v, want attached logger", got)
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithField("path", "/a").Debug("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v: %q", err, buf.String())
	}
	if entry["msg"] != "hello" || entry["path"] != "/a" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name, format, level string
	}{
		{"bad format", "xml", "info"},
		{"bad level", "text", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&bytes.Buffer{}, tt.format, tt.level); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer rootLogger.SetLevel(rootLogger.Level)

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if rootLogger.Level != logrus.WarnLevel {
		t.Errorf("level = %v, want warn", rootLogger.Level)
	}
	if err := SetLevel("nope"); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := SetFormat("nope"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTestLogger(t *testing.T) {
	logger := TestLogger(t)
	if logger.Level != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.Level)
	}
	logger.Debug("visible with -v")
}
