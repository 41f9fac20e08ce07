package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one line per record:
//
//	2026-01-02 15:04:05 WARN [resolver] Tomogram 3_2 (resolve) – message key=value
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	timestamp := record.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	kvs := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&kvs, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&kvs, h.groups, attr)
		return true
	})

	var component, tomogram, step string
	filtered := make([]kv, 0, len(kvs))
	for _, kv := range kvs {
		switch kv.key {
		case FieldComponent:
			if component == "" {
				component = attrString(kv.value)
			}
			continue
		case FieldTomogramID:
			if tomogram == "" {
				tomogram = attrString(kv.value)
			}
			continue
		case FieldStep:
			if step == "" {
				step = attrString(kv.value)
			}
			continue
		case FieldRunID:
			// Present on every line of a run; only the JSON file keeps it.
			if record.Level >= slog.LevelInfo {
				continue
			}
		}
		filtered = append(filtered, kv)
	}

	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(filtered)*24)

	buf.WriteString(formatTimestamp(timestamp))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if component != "" {
		buf.WriteString(" [")
		buf.WriteString(component)
		buf.WriteByte(']')
	}
	if subject := composeSubject(tomogram, step); subject != "" {
		buf.WriteByte(' ')
		buf.WriteString(subject)
	}
	buf.WriteString(" – ")
	buf.WriteString(message)

	if h.addSource {
		if src := recordSource(record); src != nil {
			buf.WriteString(" [")
			buf.WriteString(filepath.Base(src.File))
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(src.Line))
			buf.WriteByte(']')
		}
	}

	for _, kv := range filtered {
		if kv.key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(kv.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(kv.value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.attrs = append(clone.attrs, attrs...)
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	clone := &prettyHandler{
		mu:        h.mu,
		writer:    h.writer,
		level:     h.level,
		addSource: h.addSource,
	}
	if len(h.attrs) > 0 {
		clone.attrs = make([]slog.Attr, len(h.attrs))
		copy(clone.attrs, h.attrs)
	}
	if len(h.groups) > 0 {
		clone.groups = make([]string, len(h.groups))
		copy(clone.groups, h.groups)
	}
	return clone
}

func composeSubject(tomogram, step string) string {
	tomogram = strings.TrimSpace(tomogram)
	step = strings.TrimSpace(step)
	switch {
	case tomogram != "" && step != "":
		return "Tomogram " + tomogram + " (" + step + ")"
	case tomogram != "":
		return "Tomogram " + tomogram
	default:
		return step
	}
}

type kv struct {
	key   string
	value slog.Value
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string{}, prefix...), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 && key != "" {
		key = strings.Join(append(append([]string{}, prefix...), key), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

// recordSource mirrors slog.Record.Source (Go 1.25+) for older toolchains.
func recordSource(r slog.Record) *slog.Source {
	if r.PC == 0 {
		return nil
	}
	frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
	return &slog.Source{Function: frame.Function, File: frame.File, Line: frame.Line}
}
