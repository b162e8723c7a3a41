package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	SetSink(&buf)
	t.Cleanup(func() {
		SetSink(os.Stderr)
		SetLevel(Notice)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(Info)

	logger := New("filter-test")
	logger.Debug("hidden")
	logger.Infof("planned %dx%d frames", 640, 480)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug message to be filtered; got %q", out)
	}
	if exp := "[filter-test] [INFO] planned 640x480 frames"; !strings.Contains(out, exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, out)
	}
}

func TestModuleOverride(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(Debug)
	SetModuleLevel("override-test", Error)

	New("override-test").Warning("suppressed")
	New("other-test").Debug("visible")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("expected module override to suppress warnings; got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("expected debug output for other modules; got %q", out)
	}
}

func TestForDevice(t *testing.T) {
	buf := captureOutput(t)

	ForDevice("gipuma", "GPU:1").Notice("ready")
	if exp := "[gipuma (GPU:1)] [NOTI] ready"; !strings.Contains(buf.String(), exp) {
		t.Fatalf("expected output to contain %q; got %q", exp, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	type spec struct {
		in     string
		exp    Level
		expErr bool
	}

	specs := []spec{
		{"debug", Debug, false},
		{"INFO", Info, false},
		{"Warning", Warning, false},
		{"error", Error, false},
		{"verbose", 0, true},
	}

	for specIndex, s := range specs {
		level, err := ParseLevel(s.in)
		if s.expErr {
			if err == nil {
				t.Errorf("[spec %d] expected an error", specIndex)
			}
			continue
		}
		if err != nil || level != s.exp {
			t.Errorf("[spec %d] expected level %s; got %s (err %v)", specIndex, s.exp, level, err)
		}
	}
}
