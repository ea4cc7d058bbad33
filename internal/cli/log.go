package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/store"
	"github.com/roach88/patchsync/internal/value"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Source   string // optional - one source only
}

// LogEntry is one journaled transform.
type LogEntry struct {
	Source     string      `json:"source"`
	Seq        int64       `json:"seq"`
	ID         string      `json:"id"`
	Ancestry   []string    `json:"ancestry,omitempty"`
	Operations value.Value `json:"operations"`
	Inverse    value.Value `json:"inverse"`
	Checksum   string      `json:"checksum"`
}

// LogResult lists the journal of one or more sources.
type LogResult struct {
	Sources []string   `json:"sources"`
	Entries []LogEntry `json:"entries"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List journaled transforms",
		Long: `List the transforms journaled in a database, per source and in the order
they were applied.

Examples:
  patchsync log --db ./patchsync.db
  patchsync log --db ./patchsync.db --source backup --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Source, "source", "", "list one source only")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "failed to open database", err)
	}
	defer st.Close()

	sources := []string{opts.Source}
	if opts.Source == "" {
		sources, err = st.Sources(ctx)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to list sources", err)
		}
	}

	result := LogResult{Sources: sources, Entries: []LogEntry{}}
	for _, src := range sources {
		records, err := st.ReadTransforms(ctx, src)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric,
				fmt.Sprintf("failed to read transforms for %s", src), err)
		}
		for _, rec := range records {
			result.Entries = append(result.Entries, LogEntry{
				Source:     rec.Source,
				Seq:        rec.Seq,
				ID:         rec.ID,
				Ancestry:   rec.Ancestry,
				Operations: patch.OperationsValue(rec.Operations),
				Inverse:    patch.OperationsValue(rec.Inverse),
				Checksum:   rec.Checksum,
			})
		}
	}

	if formatter.Structured() {
		return formatter.Success(result)
	}
	return outputLogText(cmd, result)
}

// openExisting opens a journal database that must already exist, so a
// mistyped path is not silently created empty.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return store.Open(path)
}

func outputLogText(cmd *cobra.Command, result LogResult) error {
	w := cmd.OutOrStdout()
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "No transforms journaled.")
		return nil
	}

	current := ""
	for _, e := range result.Entries {
		if e.Source != current {
			current = e.Source
			fmt.Fprintf(w, "%s:\n", current)
		}
		ops, err := value.Marshal(e.Operations)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("  %4d  %s  %s", e.Seq, e.ID, ops)
		if len(e.Ancestry) > 0 {
			line += fmt.Sprintf("  (from %s)", strings.Join(e.Ancestry, " → "))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
