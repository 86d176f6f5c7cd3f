package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func initFile(t *testing.T, level, format string) string {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "test.log")
	opts := Options{
		Level:     level,
		Format:    format,
		File:      FileConfig{Path: logFile, MaxSizeMB: 1},
		NoConsole: true,
	}
	if err := Init(opts); err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	t.Cleanup(func() { SetLogger(nil) })
	return logFile
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	Sync()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return string(content)
}

func TestNopBeforeInit(t *testing.T) {
	SetLogger(nil)
	// Must not panic without Init.
	Info("frame stats")
	Named("culling").Debug("considered")
	ForFrame("shadow", 3).Warn("dropped")
	Sugar.Warnf("dropped %d shadows", 2)
}

func TestNamedComponentInOutput(t *testing.T) {
	logFile := initFile(t, "debug", FormatConsole)

	Named("shadow").Warn("shadow dropped")

	out := readLog(t, logFile)
	if !strings.Contains(out, "shadow") || !strings.Contains(out, "shadow dropped") {
		t.Errorf("named logger output missing component or message: %q", out)
	}
}

func TestJSONFrameFields(t *testing.T) {
	logFile := initFile(t, "info", FormatJSON)

	ForFrame("renderer", 42).Info("frame rendered")

	var entry map[string]any
	line := strings.TrimSpace(readLog(t, logFile))
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %q", err, line)
	}
	if entry["component"] != "renderer" || entry["msg"] != "frame rendered" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["frame"] != float64(42) {
		t.Errorf("frame = %v, want 42", entry["frame"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		expected []string
		excluded []string
	}{
		{"error", []string{"ERROR"}, []string{"WARN", "INFO", "DEBUG"}},
		{"warn", []string{"ERROR", "WARN"}, []string{"INFO", "DEBUG"}},
		{"info", []string{"ERROR", "WARN", "INFO"}, []string{"DEBUG"}},
		{"", []string{"ERROR", "WARN", "INFO"}, []string{"DEBUG"}},
		{"debug", []string{"ERROR", "WARN", "INFO", "DEBUG"}, nil},
	}

	for _, tt := range tests {
		t.Run("level="+tt.level, func(t *testing.T) {
			logFile := initFile(t, tt.level, FormatConsole)

			Debug("cull pass")
			Info("frame rendered")
			Warn("atlas exhausted")
			Error("invalid transition")

			out := readLog(t, logFile)
			for _, exp := range tt.expected {
				if !strings.Contains(out, exp) {
					t.Errorf("expected %s in log output", exp)
				}
			}
			for _, exc := range tt.excluded {
				if strings.Contains(out, exc) {
					t.Errorf("unexpected %s in log output for level %s", exc, tt.level)
				}
			}
		})
	}
}

func TestInitRejects(t *testing.T) {
	defer SetLogger(nil)
	tests := []struct {
		name string
		opts Options
	}{
		{"level", Options{Level: "verbose", NoConsole: true}},
		{"format", Options{Level: "info", Format: "xml", NoConsole: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Init(tt.opts); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/visbench.log")
	if cfg.Path != "/tmp/visbench.log" {
		t.Errorf("expected path /tmp/visbench.log, got %s", cfg.Path)
	}
	if cfg.MaxSizeMB != 50 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 7 {
		t.Errorf("unexpected rotation defaults: %+v", cfg)
	}
	if !cfg.Compress {
		t.Error("expected Compress to be true")
	}
}
