package cli

import "remotetriage/internal/triage"

// Exit codes returned by Execute.
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidUsage = 2
)

// ProgressEvent is one JSONL record written by the CLI.
type ProgressEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Report is the outcome of one lookup as the CLI prints it.
type Report struct {
	Host string `json:"host"`
	triage.View
}

// NewReport converts a session snapshot.
func NewReport(host string, snap triage.Snapshot) Report {
	return Report{Host: host, View: triage.NewView(snap)}
}
