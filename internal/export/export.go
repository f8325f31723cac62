// Package export writes envoy config dumps to disk as pretty-printed JSON or YAML.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"remotetriage/internal/config"
	"remotetriage/internal/logging"
	"remotetriage/internal/triage"
)

// fileLocks serializes writes to the same path
var fileLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: make(map[string]*sync.Mutex),
}

func getFileLock(path string) *sync.Mutex {
	fileLocks.Lock()
	defer fileLocks.Unlock()

	absPath, _ := filepath.Abs(path)
	if lock, exists := fileLocks.locks[absPath]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	fileLocks.locks[absPath] = lock
	return lock
}

// FileExporter saves config dumps under Dir
type FileExporter struct {
	Dir    string
	Format string

	writeFile func(path string, data []byte) error
}

// NewFileExporter creates an exporter for dir in format (json or yaml)
func NewFileExporter(dir, format string) *FileExporter {
	return &FileExporter{Dir: dir, Format: format, writeFile: writeAtomic}
}

// Export implements triage.Exporter and returns the written path
func (e *FileExporter) Export(ctx context.Context, req triage.ExportRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, filename, err := Render(req, e.Format)
	if err != nil {
		return "", err
	}

	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, filename)
	write := e.writeFile
	if write == nil {
		write = writeAtomic
	}
	if err := write(path, body); err != nil {
		return "", err
	}
	logging.Info("Exported config dump for %s to %s", req.Host, path)
	return path, nil
}

// Render formats the dump and returns it with the filename it should be
// saved under. YAML output swaps the .json extension for .yaml.
func Render(req triage.ExportRequest, format string) ([]byte, string, error) {
	if len(req.Data) == 0 {
		return nil, "", triage.ErrNoConfigDump
	}

	switch strings.ToLower(format) {
	case "", config.ExportFormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, req.Data, "", "\t"); err != nil {
			return nil, "", fmt.Errorf("config dump is not valid JSON: %w", err)
		}
		return buf.Bytes(), req.Filename, nil
	case config.ExportFormatYAML:
		out, err := jsonToYAML(req.Data)
		if err != nil {
			return nil, "", err
		}
		return out, strings.TrimSuffix(req.Filename, ".json") + ".yaml", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// jsonToYAML re-encodes JSON as block-style YAML. Going through yaml.Node
// keeps the key order of the original document.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse config dump: %w", err)
	}
	clearStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func clearStyle(node *yaml.Node) {
	node.Style = 0
	for _, child := range node.Content {
		clearStyle(child)
	}
}

func writeAtomic(path string, data []byte) error {
	lock := getFileLock(path)
	lock.Lock()
	defer lock.Unlock()

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
