package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/patchsync/internal/store"
	"github.com/roach88/patchsync/internal/value"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Source   string
	To       string // optional - rewind to just after this transform
}

// ReplayResult is a source rebuilt from its journal.
type ReplayResult struct {
	Source   string      `json:"source"`
	Document value.Value `json:"document"`
	Log      []string    `json:"log"`
	LastSeq  int64       `json:"last_seq"`
	Undone   []string    `json:"undone,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a source's document from its journal",
		Long: `Replay every journaled transform of a source, in order, onto the seed
recorded for it, verifying each transform's checksum on the way.

With --to the replayed document is then rewound, newest first, using the
journaled inverses until the given transform is the last one applied.

Exit codes:
  0 - Replay succeeded
  1 - A checksum did not match or a transform failed to apply
  2 - Command error (database not found, etc.)

Examples:
  patchsync replay --db ./patchsync.db --source backup
  patchsync replay --db ./patchsync.db --source backup --to t-3 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source to replay (required)")
	_ = cmd.MarkFlagRequired("source")
	cmd.Flags().StringVar(&opts.To, "to", "", "rewind to just after this transform id")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openExisting(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "failed to open database", err)
	}
	defer st.Close()

	replayed, err := st.Replay(ctx, opts.Source, nil)
	if err != nil {
		if errors.Is(err, store.ErrChecksumMismatch) {
			return formatter.fail(ExitFailure, ErrCodeValidation, "journal checksum mismatch", err)
		}
		return formatter.fail(ExitFailure, ErrCodeApply, "replay failed", err)
	}
	formatter.VerboseLog("Replayed %d transform(s) for %s", len(replayed.Log), opts.Source)

	result := ReplayResult{
		Source:  replayed.Source,
		Log:     replayed.Log,
		LastSeq: replayed.LastSeq,
	}

	if opts.To != "" {
		undone, err := st.Rewind(ctx, opts.Source, replayed.Document, opts.To)
		if err != nil {
			return formatter.fail(ExitFailure, ErrCodeApply, "rewind failed", err)
		}
		result.Undone = undone
		result.Log = result.Log[:len(result.Log)-len(undone)]
	}
	result.Document = replayed.Document.Data()

	if formatter.Structured() {
		return formatter.Success(result)
	}
	return outputReplayText(cmd, result)
}

func outputReplayText(cmd *cobra.Command, r ReplayResult) error {
	w := cmd.OutOrStdout()

	data, err := value.Marshal(r.Document)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %d transform(s), last seq %d\n", r.Source, len(r.Log), r.LastSeq)
	if len(r.Undone) > 0 {
		fmt.Fprintf(w, "rewound: %s\n", strings.Join(r.Undone, ", "))
	}
	fmt.Fprintln(w, string(data))
	return nil
}
