package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("stderr missing usage text: %q", stderr.String())
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, cmd := range []string{"serve", "replay", "sim"} {
		if !strings.Contains(stdout.String(), cmd) {
			t.Fatalf("usage does not mention %q:\n%s", cmd, stdout.String())
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"launch"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown command: launch") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestReplayRequiresInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"replay"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "--in is required") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func writeCapture(t *testing.T, frames func(*stream.Encoder)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.ntl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	frames(stream.NewEncoder(f))
	return path
}

func TestReplayDecodesCapture(t *testing.T) {
	path := writeCapture(t, func(enc *stream.Encoder) {
		if err := enc.Emit(0, simCalibration); err != nil {
			t.Fatal(err)
		}
		for tick := uint64(1024); tick <= 3072; tick += 1024 {
			if err := enc.Emit(tick, telemetry.BarometerData{Temperature: 8566784, Pressure: 9085466}); err != nil {
				t.Fatal(err)
			}
		}
	})

	var stdout, stderr bytes.Buffer
	if code := run([]string{"replay", "--in", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, want 0\nstderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "decoded 4 events") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d JSONL lines, want 4:\n%s", len(lines), stdout.String())
	}
	if !strings.Contains(lines[1], `"temperature_c"`) {
		t.Fatalf("barometer record missing converted fields: %s", lines[1])
	}
}

func TestReplayReportsValidPrefix(t *testing.T) {
	path := writeCapture(t, func(enc *stream.Encoder) {
		if err := enc.Emit(0, simCalibration); err != nil {
			t.Fatal(err)
		}
		if err := enc.Emit(1024, telemetry.BarometerData{Temperature: 8566784, Pressure: 9085466}); err != nil {
			t.Fatal(err)
		}
	})
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	// A lone tag byte with no header or payload behind it.
	if _, err := f.Write([]byte{0x02}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"replay", "--in", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1\nstderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "valid prefix: 2 events") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d JSONL lines, want 2:\n%s", len(lines), stdout.String())
	}
}
