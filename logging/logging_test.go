package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagecleanse/logging"
)

func TestConsoleLoggerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "scanner").Info("scan complete",
		logging.Int("images", 3),
		logging.String("folder", "/media/photos"),
	)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "INFO scanner: scan complete") {
		t.Fatalf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "images=3") || !strings.Contains(out, "folder=/media/photos") {
		t.Fatalf("expected attributes, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered at info level: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("non-terminal writer should not receive colour codes: %q", out)
	}
}

func TestJSONLoggerWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "cleanse.log")
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writer: &buf, LogFile: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(logging.CloseLogFiles)

	logging.ImageProcessed(logger, "a.jpg", errors.New("decode failed"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, content)
	}
	if record["level"] != "warn" || record["path"] != "a.jpg" || record["error"] != "decode failed" {
		t.Fatalf("unexpected record: %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", record)
	}
	if buf.String() != string(content) {
		t.Fatal("stdout writer and log file should receive identical records")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
