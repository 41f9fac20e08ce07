package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmbatch/internal/config"
	"tmbatch/internal/logging"
	"tmbatch/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	var console bytes.Buffer
	logger, err := logging.NewFromConfig(&cfg, &console)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("batch started", logging.Int("tomograms", 3))

	if !strings.Contains(console.String(), "batch started") {
		t.Fatalf("expected console output, got %q", console.String())
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "tmbatch.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "batch started" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["tomograms"] != float64(3) {
		t.Fatalf("unexpected tomograms field: %v", record["tomograms"])
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleSubjectFromContext(t *testing.T) {
	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithTomogramID(ctx, "3_2")
	ctx = services.WithStep(ctx, "resolve")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(base, "resolver"))
	logger.Info("resolved", logging.String("volume", "/data/rec_Position_3_2.mrc"))

	line := buf.String()
	for _, fragment := range []string{"INFO", "[resolver]", "Tomogram 3_2 (resolve)", "– resolved", "volume=/data/rec_Position_3_2.mrc"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "run-1") {
		t.Fatalf("expected run id to be hidden from info console lines, got %q", line)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "mask missing", "mask_missing", logging.String(logging.FieldImpact, "job runs without tomogram mask"))

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "mask_missing" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] != "check logs for details" {
		t.Fatalf("expected default hint, got %v", record[logging.FieldErrorHint])
	}
	if record[logging.FieldImpact] != "job runs without tomogram mask" {
		t.Fatalf("expected explicit impact to be kept, got %v", record[logging.FieldImpact])
	}
}

func TestConsoleQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error("submit failed", logging.Error(errors.New("exit status 1")))
	if !strings.Contains(buf.String(), `error="exit status 1"`) {
		t.Fatalf("expected quoted error, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLogFileKeepsInfoWhenConsoleIsQuieter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tmbatch.log")
	var console bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Console: &console, FilePath: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("script written", logging.String("tomogram_id", "7"))
	logger.Debug("not recorded anywhere")

	if console.Len() != 0 {
		t.Fatalf("expected warn-level console to drop info, got %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record in log file, got %q", data)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("log file is not JSON: %v", err)
	}
	if record["msg"] != "script written" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	ts, _ := record["ts"].(string)
	if !strings.HasSuffix(ts, "Z") || !strings.Contains(ts, ".") {
		t.Fatalf("expected UTC timestamp with milliseconds, got %q", ts)
	}
}
