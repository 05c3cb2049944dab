package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JamesPrial/datacommons-mcp/internal/storage"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		filter storage.Filter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded tool calls",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &invocationError{err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.history(filter, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Tool, "tool", "", "only show calls to this tool")
	f.StringVar(&filter.SessionID, "session", "", "only show calls from this session")
	f.BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func (a *app) history(filter storage.Filter, asJSON bool) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if backend := strings.ToLower(strings.TrimSpace(cfg.CallLog.Backend)); backend == "" || backend == storage.BackendNone {
		_, _ = fmt.Fprintln(a.deps.Stderr, "Call log is disabled; set call_log.backend to json, sqlite or postgres.")
		return nil
	}

	b, err := storage.GetStorageBackend(cfg.CallLog.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to open call log: %w", err)
	}
	defer func() { _ = storage.Close(b) }()

	entries, err := storage.Query(b, filter)
	if err != nil {
		return fmt.Errorf("failed to read call log: %w", err)
	}
	if entries == nil {
		entries = []storage.CallEntry{}
	}
	a.logger.Debug("loaded call log", "backend", cfg.CallLog.Backend, "entries", len(entries))

	if asJSON {
		enc := json.NewEncoder(a.deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return writeHistoryTable(a.deps.Stdout, entries)
}

func writeHistoryTable(w io.Writer, entries []storage.CallEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No calls recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIMESTAMP\tTOOL\tSESSION\tSTATUS\tDURATION\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.Timestamp, e.Tool, e.SessionID, e.Status, e.DurationMs, e.Error)
	}
	return tw.Flush()
}
