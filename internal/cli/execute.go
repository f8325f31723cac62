package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"remotetriage/internal/config"
	"remotetriage/internal/triage"
	"remotetriage/internal/version"
)

// Execute runs the CLI with the provided args and manager.
func Execute(args []string, manager Manager, out, errOut io.Writer) int {
	return ExecuteContext(context.Background(), args, manager, out, errOut)
}

// ExecuteContext is Execute bound to ctx, typically cancelled on SIGINT.
func ExecuteContext(ctx context.Context, args []string, manager Manager, out, errOut io.Writer) int {
	cmd := NewRootCommand(manager, out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(errOut, "Error:", err)
		var usageErr *usageError
		if errors.As(err, &usageErr) || strings.HasPrefix(err.Error(), "unknown command") {
			return ExitInvalidUsage
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCommand builds the root CLI command tree.
func NewRootCommand(manager Manager, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "remotetriage",
		Short:         "Inspect a remote Envoy proxy through the triage API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().Bool("json", false, "output JSONL")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(newLookupCommand(manager))
	root.AddCommand(newExportCommand(manager))
	root.AddCommand(newWatchCommand(manager))
	root.AddCommand(newServeCommand(manager))
	root.AddCommand(newVersionCommand())

	return root
}

type usageError struct {
	err error
}

func (u *usageError) Error() string {
	if u.err == nil {
		return "invalid usage"
	}
	return u.err.Error()
}

type runtimeError struct {
	err error
}

func (r *runtimeError) Error() string {
	if r.err == nil {
		return "runtime error"
	}
	return r.err.Error()
}

func (r *runtimeError) Unwrap() error {
	return r.err
}

func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{err: fmt.Errorf("requires exactly %d argument(s), got %d", n, len(args))}
		}
		return nil
	}
}

func addressArg(cmd *cobra.Command, args []string) (triage.HostAddress, error) {
	host := strings.TrimSpace(args[0])
	if host == "" {
		return triage.HostAddress{}, &usageError{err: fmt.Errorf("host must not be empty")}
	}
	port, _ := cmd.Flags().GetUint32("port")
	return triage.HostAddress{Host: host, Port: port}, nil
}

func newLookupCommand(manager Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <host>",
		Short: "fetch and summarize diagnostics for an envoy host",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := addressArg(cmd, args)
			if err != nil {
				return err
			}
			report, err := manager.Lookup(cmd.Context(), addr)
			if err != nil {
				return writeError(cmd, err)
			}
			return writeReport(cmd, report)
		},
	}
	cmd.Flags().Uint32("port", 0, "envoy admin port, backend default when unset")
	return cmd
}

func newExportCommand(manager Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <host>",
		Short: "save the envoy config dump of a host to a file",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := addressArg(cmd, args)
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			format, _ := cmd.Flags().GetString("format")
			format = strings.ToLower(format)
			if format != "" && format != config.ExportFormatJSON && format != config.ExportFormatYAML {
				return &usageError{err: fmt.Errorf("unsupported format %q", format)}
			}

			path, err := manager.Export(cmd.Context(), addr, dir, format)
			if err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{
				Type:    "success",
				Message: fmt.Sprintf("Config dump saved to %s", path),
				Data:    map[string]string{"path": path},
			})
		},
	}
	cmd.Flags().Uint32("port", 0, "envoy admin port")
	cmd.Flags().String("dir", "", "output directory (defaults to export_dir)")
	cmd.Flags().String("format", "", "json or yaml (defaults to export_format)")
	return cmd
}

func newWatchCommand(manager Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <host>",
		Short: "re-run a lookup on a cron schedule",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := addressArg(cmd, args)
			if err != nil {
				return err
			}
			schedule, _ := cmd.Flags().GetString("schedule")
			if _, err := cron.ParseStandard(schedule); err != nil {
				return &usageError{err: fmt.Errorf("invalid schedule %q: %w", schedule, err)}
			}
			count, _ := cmd.Flags().GetInt("count")
			if count < 0 {
				return &usageError{err: fmt.Errorf("count must not be negative")}
			}
			return streamEvents(cmd, manager.Watch(cmd.Context(), addr, schedule, count))
		},
	}
	cmd.Flags().Uint32("port", 0, "envoy admin port")
	cmd.Flags().String("schedule", "@every 30s", "cron schedule between lookups")
	cmd.Flags().Int("count", 0, "stop after this many lookups (0 runs until interrupted)")
	return cmd
}

func newServeCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the triage HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := manager.Serve(cmd.Context()); err != nil {
				return writeError(cmd, err)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			return writeEvent(cmd, ProgressEvent{Type: "result", Message: info.String(), Data: info})
		},
	}
}

func writeReport(cmd *cobra.Command, report Report) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		event := ProgressEvent{Type: "result", Data: report}
		if report.Error != "" {
			event.Type = "error"
			event.Code = "fetch_failed"
			event.Message = report.Error
		}
		if err := writeEventWithContext(cmd.Context(), cmd, event, true); err != nil {
			return err
		}
	} else if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Error != "" {
		return &runtimeError{err: errors.New(report.Error)}
	}
	return nil
}

func printReport(w io.Writer, report Report) error {
	if report.Error != "" {
		_, err := fmt.Fprintf(w, "Lookup of %s failed: %s\n", report.Host, report.Error)
		return err
	}
	if !report.Found {
		_, err := fmt.Fprintf(w, "No diagnostic data returned for %s\n", report.Host)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range report.Details {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", row.Name, row.Value)
	}
	s := report.Summary
	_, _ = fmt.Fprintf(tw, "Clusters\t%d running, %d failing\n", s.HealthyClusterCount, s.FailingClusterCount)
	_, _ = fmt.Fprintf(tw, "Listeners\t%d\n", s.ListenerCount)
	_, _ = fmt.Fprintf(tw, "Runtime Keys\t%d\n", s.RuntimeKeyCount)
	_, _ = fmt.Fprintf(tw, "Stats\t%d\n", s.StatCount)
	for _, fc := range report.FailingClusters {
		_, _ = fmt.Fprintf(tw, "Failing\t%s (%s)\n", fc.Name, strings.Join(fc.UnhealthyHosts, ", "))
	}
	return tw.Flush()
}

func streamEvents(cmd *cobra.Command, events <-chan ProgressEvent) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	hasError := false
	for event := range events {
		if err := writeEventWithContext(ctx, cmd, event, jsonOutput); err != nil {
			return &runtimeError{err: err}
		}
		if event.Type == "error" {
			hasError = true
		}
	}
	if hasError {
		return &runtimeError{err: fmt.Errorf("one or more lookups failed")}
	}
	return nil
}

func writeError(cmd *cobra.Command, err error) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		_ = writeEventWithContext(cmd.Context(), cmd, ProgressEvent{
			Type:    "error",
			Message: err.Error(),
			Code:    errorCode(err),
		}, true)
	}
	return &runtimeError{err: err}
}

func errorCode(err error) string {
	var re *triage.RequestError
	switch {
	case errors.Is(err, triage.ErrNoResult):
		return "no_result"
	case errors.Is(err, triage.ErrNoConfigDump):
		return "no_config_dump"
	case errors.As(err, &re):
		return "fetch_failed"
	default:
		return ""
	}
}

func writeEvent(cmd *cobra.Command, event ProgressEvent) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return writeEventWithContext(cmd.Context(), cmd, event, jsonOutput)
}

func writeEventWithContext(ctx context.Context, cmd *cobra.Command, event ProgressEvent, jsonOutput bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(event)
	}
	if event.Message != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), event.Message)
		return err
	}
	return nil
}
