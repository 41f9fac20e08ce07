package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"tmbatch/internal/logging"
)

const maxLineBytes = 1024 * 1024

// Record is one parsed log line. Raw holds the original text; lines that are
// not JSON objects carry only Raw.
type Record struct {
	Raw        string
	Time       string
	Level      string
	Message    string
	Component  string
	RunID      string
	TomogramID string
	EventType  string
}

// Filter narrows records. Zero values match everything.
type Filter struct {
	RunID      string
	TomogramID string
	// MinLevel drops records below this level (debug, info, warn, error).
	MinLevel string
}

// Match reports whether r passes f.
func (f Filter) Match(r Record) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.TomogramID != "" && r.TomogramID != f.TomogramID {
		return false
	}
	if f.MinLevel != "" && levelRank(r.Level) < levelRank(f.MinLevel) {
		return false
	}
	return true
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info", "":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}

// Parse decodes one log line.
func Parse(line string) Record {
	rec := Record{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return rec
	}
	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	rec.Time = str("ts")
	if rec.Time == "" {
		rec.Time = str(slog.TimeKey)
	}
	rec.Level = str("level")
	rec.Message = str("msg")
	rec.Component = str(logging.FieldComponent)
	rec.RunID = str(logging.FieldRunID)
	rec.TomogramID = str(logging.FieldTomogramID)
	rec.EventType = str(logging.FieldEventType)
	return rec
}

// Tail returns up to limit of the last matching records in path and the file
// offset after them. A missing file yields no records and offset zero. A
// limit <= 0 returns every matching record.
func Tail(path string, limit int, filter Filter) ([]Record, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []Record
	next := 0
	offset, err := scan(file, func(rec Record) {
		if !filter.Match(rec) {
			return
		}
		if limit <= 0 || len(ring) < limit {
			ring = append(ring, rec)
			return
		}
		ring[next] = rec
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	if next == 0 {
		return ring, offset, nil
	}
	out := make([]Record, 0, len(ring))
	out = append(out, ring[next:]...)
	out = append(out, ring[:next]...)
	return out, offset, nil
}

// Follow emits matching records appended after offset, polling every poll
// interval until ctx is done. A truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, filter Filter, emit func(Record)) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(Record)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	read, err := scan(file, func(rec Record) {
		if filter.Match(rec) {
			emit(rec)
		}
	})
	if err != nil {
		return offset, err
	}
	return offset + read, nil
}

// scan feeds every complete line of r to fn and returns the number of bytes
// consumed. A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(Record)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		text := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fn(Parse(text))
	}
}
