package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/core"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		target string
		table  string
		dryRun bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Preview and commit a spreadsheet",
		Long: `Stage a CSV or Excel file, then write it to the selected stores.

The target table is named after the file unless --table is given. With
--dry-run the file is parsed and its inferred columns are printed, but
nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			into, err := core.ParseImportTarget(target)
			if err != nil {
				return err
			}
			return runImport(cmd, a.svc, args[0], into, table, dryRun, output)
		}),
	}

	cmd.Flags().StringVarP(&target, "target", "t", string(core.TargetRelational), "store to write to: relational, document or both")
	cmd.Flags().StringVar(&table, "table", "", "target table or collection name (default: derived from the file name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the preview and discard it")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")

	return cmd
}

func runImport(cmd *cobra.Command, svc *core.Service, path string, into core.ImportTarget, table string, dryRun bool, output string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	prev, err := svc.Preview(ctx, f, filepath.Base(path))
	if err != nil {
		return userError(err)
	}

	if dryRun {
		if err := svc.Cancel(ctx, prev.SessionID); err != nil {
			return err
		}
		if output == "json" {
			return writeJSON(out, prev)
		}
		printPreview(out, prev)
		return nil
	}

	result, commitErr := svc.Commit(ctx, prev.SessionID, into, table)
	if result == nil {
		if cerr := svc.Cancel(ctx, prev.SessionID); cerr != nil && !errors.Is(cerr, apperrors.ErrNotFound) {
			slog.Warn("discard preview", "session_id", prev.SessionID, "error", cerr)
		}
		return userError(commitErr)
	}
	if output == "json" {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printCommit(out, result)
	}
	if commitErr != nil {
		return fmt.Errorf("import failed: %w", userError(commitErr))
	}
	return nil
}

// userError prefixes err with its user-facing message when one is known.
// Unmapped errors are returned as they are so their detail is not hidden
// behind the generic message.
func userError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}

func printPreview(w io.Writer, p *core.PreviewResult) {
	fmt.Fprintf(w, "%s: %d rows, target %q\n", p.FileName, p.Total, p.Target)
	for _, c := range p.Columns {
		flag := ""
		if c.IsImage {
			flag = " (image)"
		}
		fmt.Fprintf(w, "  %-24s %s%s\n", c.Name, c.Type, flag)
	}
}

func printCommit(w io.Writer, r *core.CommitResult) {
	fmt.Fprintf(w, "%s: %d rows into %q (%s)\n", r.SessionID, r.Total, r.Target, r.Status)
	for _, b := range r.Results {
		if b.Succeeded() {
			fmt.Fprintf(w, "  %-10s ok      %d rows in %d batches, %dms\n", b.Backend, b.Rows, b.Batches, b.DurationMs)
			continue
		}
		fmt.Fprintf(w, "  %-10s failed  %d rows written before %s: %s\n", b.Backend, b.Rows, b.Code, strings.TrimSpace(b.Error))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
