package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tmbatch/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 22
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// preflightLines renders a summary line followed by one line per check.
func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results)+1)
	summaryKind := statusOK
	for _, r := range results {
		if r.Blocking() {
			summaryKind = statusError
			break
		}
		if !r.Passed {
			summaryKind = statusWarn
		}
	}
	lines = append(lines, renderStatusLine("Summary", summaryKind, preflight.Summary(results), colorize))
	for _, r := range results {
		kind := statusOK
		switch {
		case r.Blocking():
			kind = statusError
		case !r.Passed:
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
