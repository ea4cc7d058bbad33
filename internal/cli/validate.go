package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/patchsync/internal/topology"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                        `json:"valid"`
	Sources    int                         `json:"sources"`
	Connectors int                         `json:"connectors"`
	Errors     []topology.ValidationError `json:"errors,omitempty"`
	Warnings   []topology.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <topology>",
		Short: "Validate a topology without running it",
		Long: `Validate a CUE topology (a .cue file or a package directory).

Checks the file against the topology schema, then checks that connectors
reference declared sources, carry the options their type needs, and that
request connectors do not loop back to their primary. Loops of blocking
transform connectors are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("topology not found: %s", path), nil)
	}

	cfg, err := topology.Load(path)
	if err != nil {
		var cErr *topology.CompileError
		if errors.As(err, &cErr) {
			return outputValidationErrors(formatter, ValidationResult{
				Errors: []topology.ValidationError{{
					Field:   cErr.Field,
					Message: cErr.Message,
					Code:    ErrCodeParse,
					Line:    lineOfCompileError(cErr),
				}},
			})
		}
		return formatter.fail(ExitFailure, ErrCodeParse, "failed to load topology", err)
	}
	formatter.VerboseLog("Loaded %d source(s) and %d connector(s) from %s",
		len(cfg.Sources), len(cfg.Connectors), path)

	result := ValidationResult{
		Sources:    len(cfg.Sources),
		Connectors: len(cfg.Connectors),
		Errors:     topology.Validate(cfg),
	}
	for _, w := range topology.AnalyzeCycles(cfg) {
		if w.Level == topology.LevelWarning {
			result.Warnings = append(result.Warnings, w)
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

func lineOfCompileError(e *topology.CompileError) int {
	if !e.Pos.IsValid() {
		return 0
	}
	return e.Pos.Line()
}

// outputValidateSuccess outputs success in the configured format.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Structured() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	writeWarnings(w, result.Warnings)
	fmt.Fprintf(w, "✓ Topology valid (%d sources, %d connectors)\n", result.Sources, result.Connectors)
	return nil
}

// outputValidationErrors outputs validation errors and returns an exit
// error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	message := fmt.Sprintf("%d validation error(s)", len(result.Errors))

	if formatter.Format == "json" {
		if err := formatter.Error(ErrCodeValidation, message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}
	if formatter.Format == "dump" {
		if err := formatter.Dump(result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✗ %s\n", message)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	writeWarnings(w, result.Warnings)
	return NewExitError(ExitFailure, message)
}

func writeWarnings(w io.Writer, warnings []topology.CycleWarning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn.Message)
	}
}
