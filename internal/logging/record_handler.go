package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// recordTimeLayout keeps millisecond precision so records from one run sort
// in emission order when `tmbatch logs` reads them back.
const recordTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// newRecordHandler writes one JSON object per line with the keys the logs
// reader expects: ts, level (lowercase), msg and the flattened attributes.
func newRecordHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: recordAttr,
	})
}

func recordAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String("ts", attr.Value.Time().UTC().Format(recordTimeLayout))
		}
		attr.Key = "ts"
	case slog.LevelKey:
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}
