package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" err ":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_WritesJSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	lg, closeFn, err := New(Options{Level: "info", JSON: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()

	lg.Debug("hidden")
	lg.Info("granted", "card", "04A1B2")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(out, `"card":"04A1B2"`) {
		t.Errorf("expected card attr in output, got %q", out)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lasergate.log")
	lg, closeFn, err := New(Options{File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Warn("card missing")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "card missing") {
		t.Errorf("expected message in log file, got %q", b)
	}
}
