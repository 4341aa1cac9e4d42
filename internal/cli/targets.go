package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/store"
)

func newTargetsCmd(a *app) *cobra.Command {
	var (
		backend string
		counts  bool
	)

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List imported tables or collections",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			b, err := store.ParseBackend(backend)
			if err != nil {
				return err
			}
			targets, err := a.svc.ListTargets(cmd.Context(), b)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !counts {
				for _, t := range targets {
					fmt.Fprintln(out, t)
				}
				return nil
			}

			for _, t := range targets {
				data, err := a.svc.TableData(cmd.Context(), b, t, 1, 1)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-32s %d\n", t, data.Total)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", string(store.BackendRelational), "store to list: relational or document")
	cmd.Flags().BoolVarP(&counts, "count", "c", false, "include row counts")

	return cmd
}
