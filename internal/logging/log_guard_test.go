package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoStdlibLogUsage guards against reintroducing direct uses of the stdlib log package
// outside of internal/logging. All log calls should go through this package so they respect
// the configured writers and debug switch.
func TestNoStdlibLogUsage(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", ".."))

	err := filepath.WalkDir(repoRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			name := d.Name()
			if path != repoRoot && (name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(path) != ".go" {
			return nil
		}

		// Allow the logger implementation itself to import log.
		if filepath.Base(path) == "logger.go" && strings.Contains(path, string(filepath.Separator)+"logging"+string(filepath.Separator)) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if strings.Contains(string(content), "\n\t\"log\"") || strings.Contains(string(content), "import \"log\"") {
			t.Errorf("stdlib log import found in %s; use remotetriage/internal/logging instead", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}
}

func TestLevelsAndDebugSwitch(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetDebug(false)
	})

	SetDebug(false)
	Info("lookup %s", "10.0.0.5")
	Warning("slow")
	Error("boom")
	Debug("hidden")

	out := buf.String()
	for _, want := range []string{"[INFO] lookup 10.0.0.5", "[WARN] slow", "[ERROR] boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written while debug disabled: %q", out)
	}

	SetDebug(true)
	Debug("visible")
	if !strings.Contains(buf.String(), "[DEBUG] visible") {
		t.Errorf("debug line missing after SetDebug(true): %q", buf.String())
	}
}

func TestInitializeWritesFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		SetOutput(os.Stderr)
	})

	Info("written to file")
	if err := Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Fatalf("log file content %q missing message", string(data))
	}
}
