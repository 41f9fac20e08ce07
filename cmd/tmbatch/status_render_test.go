package main

import (
	"fmt"
	"strings"
	"testing"

	"tmbatch/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Batch complete", statusError, "1 failed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Batch complete:", "[ERROR] 1 failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Validation", statusOK, "passed", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	results := []preflight.Result{
		{Name: "Volume directory", Passed: true, Detail: "/data/mrc (readable)"},
		{Name: "Mask directory", Optional: true, Detail: "/data/bmask (error: does not exist)"},
		{Name: "Template", Detail: "not configured"},
	}
	lines := preflightLines(results, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] 1 passed, 1 failed, 1 warnings") {
		t.Fatalf("unexpected summary line %q", lines[0])
	}
	if !strings.Contains(lines[2], "[WARN]") || !strings.Contains(lines[3], "[ERROR] not configured") {
		t.Fatalf("unexpected check lines %q", lines)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		-60:      "-60",
		3.1:      "3.1",
		2.123456: "2.123",
	}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Fatalf("formatNumber(%v) got %q want %q", in, got, want)
		}
	}
}
