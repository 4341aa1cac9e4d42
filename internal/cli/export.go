package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		backend string
		format  string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export <target>",
		Short: "Export a table or collection",
		Long: `Export every row of a target in its recorded column order.

Image cells are written as data URIs, except in xlsx exports where they are
embedded as pictures. Document exports carry the document id under "id".`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			b, err := store.ParseBackend(backend)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			return export(cmd, a.svc, b, args[0], format, w)
		}),
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", string(store.BackendRelational), "store to read: relational or document")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, yaml, csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "write to a file instead of stdout")

	return cmd
}

func export(cmd *cobra.Command, svc *core.Service, b store.Backend, target, format string, w io.Writer) error {
	ctx := cmd.Context()

	switch format {
	case "csv":
		return svc.ExportCSV(ctx, b, target, w)
	case "xlsx":
		return svc.ExportXLSX(ctx, b, target, w)
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	exp, err := svc.ExportData(ctx, b, target)
	if err != nil {
		return err
	}
	if format == "json" {
		return writeJSON(w, exp)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}
