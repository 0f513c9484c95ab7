package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, false)

	log.Info("hello %s", "world")
	log.Debug("hidden")
	log.Warn("careful")
	log.Error("broken %d", 3)

	out := buf.String()
	if !strings.Contains(out, "hello world\n") {
		t.Errorf("missing info line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug should be hidden when not verbose: %q", out)
	}
	if !strings.Contains(out, "[WARN] careful") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] broken 3") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestVerboseDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, true)
	log.Debug("shown")
	if !strings.Contains(buf.String(), "[DEBUG] shown") {
		t.Errorf("debug missing in verbose mode: %q", buf.String())
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, false)
	child := log.With("[track.wav]").With("aubio:")

	child.Warn("timed out")
	if got := buf.String(); got != "[WARN] [track.wav] aubio: timed out\n" {
		t.Errorf("prefixed line = %q", got)
	}
}

func TestProgressBarSuppressesConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, false)
	log.SetProgressBar(true)

	log.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("console output while bar active: %q", buf.String())
	}

	log.Error("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Error("errors must reach the console even with a bar")
	}
}

func TestFileLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log := NewWriter(&bytes.Buffer{}, false)
	if err := log.SetFileLog(path); err != nil {
		t.Fatal(err)
	}

	log.Info("one")
	log.Debug("two")
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "one\n") || !strings.Contains(string(data), "[DEBUG] two") {
		t.Errorf("file log = %q", data)
	}
}
