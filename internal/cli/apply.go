package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/patchsync/internal/patch"
	"github.com/roach88/patchsync/internal/syncerr"
	"github.com/roach88/patchsync/internal/value"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Invert bool // also report the inverse operations
}

// ApplyResult is the outcome of applying operations to a document.
type ApplyResult struct {
	Document value.Value `json:"document"`
	Inverse  value.Value `json:"inverse,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <document.json> <operations.json>",
		Short: "Apply patch operations to a JSON document",
		Long: `Apply a JSON array of patch operations ({op, path, value, from}) to a
JSON document and print the result. The operations apply as one unit: if
any of them fails the document is left unchanged.

With --invert the operations that undo the change are printed too, in the
order they must be applied.

Examples:
  patchsync apply doc.json ops.json
  patchsync apply doc.json ops.json --invert --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Invert, "invert", false, "print the inverse operations")

	return cmd
}

func runApply(opts *ApplyOptions, docPath, opsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	docData, err := os.ReadFile(docPath)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "failed to read document", err)
	}
	seed, err := value.Parse(docData)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeParse, "failed to parse document", err)
	}

	opsData, err := os.ReadFile(opsPath)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "failed to read operations", err)
	}
	ops, err := patch.DecodeOperations(opsData)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeParse, "failed to parse operations", err)
	}
	formatter.VerboseLog("Applying %d operation(s) to %s", len(ops), docPath)

	doc := patch.NewDocument(seed)
	inverse, err := doc.ApplyAll(ops, opts.Invert)
	if err != nil {
		msg := "failed to apply operations"
		if code := syncerr.CodeOf(err); code != "" {
			msg = fmt.Sprintf("%s (%s)", msg, code)
		}
		return formatter.fail(ExitFailure, ErrCodeApply, msg, err)
	}

	result := ApplyResult{Document: doc.Data()}
	if opts.Invert {
		result.Inverse = patch.OperationsValue(inverse)
	}

	if formatter.Structured() {
		return formatter.Success(result)
	}
	return outputApplyText(cmd, result)
}

func outputApplyText(cmd *cobra.Command, result ApplyResult) error {
	out := cmd.OutOrStdout()
	data, err := value.Marshal(result.Document)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))

	if result.Inverse != nil {
		inv, err := value.Marshal(result.Inverse)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "inverse: %s\n", inv)
	}
	return nil
}
