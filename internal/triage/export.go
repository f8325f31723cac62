package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ExportRequest is what the file-export collaborator receives: the raw config
// dump and the name to save it under. Formatting is the exporter's job.
type ExportRequest struct {
	Host     string
	Filename string
	Data     json.RawMessage
}

// Exporter saves an export and returns where it ended up.
type Exporter interface {
	Export(ctx context.Context, req ExportRequest) (string, error)
}

// ConfigDumpFilename renders envoy_config_dump_<host>_<epoch-millis>.json.
func ConfigDumpFilename(host string, at time.Time) string {
	return fmt.Sprintf("envoy_config_dump_%s_%d.json", host, at.UnixMilli())
}
