// Package cli implements the sheetctl command tree.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
)

// app is the state shared by subcommands that talk to the stores.
type app struct {
	cfg *config.Config
	svc *core.Service
}

// open loads configuration and connects the configured stores. It runs
// per command rather than on the root so that help and completion work
// without a database.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Logs go to stderr so exports can be piped.
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))

	ctx := logging.ContextWith(cmd.Context(), "source", "cli", "command", cmd.Name())
	cmd.SetContext(ctx)

	svc, err := core.NewServiceFromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	a.cfg, a.svc = cfg, svc
	return nil
}

// run wraps a command body with open and close.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd); err != nil {
			return err
		}
		defer func() {
			if err := a.svc.Close(cmd.Context()); err != nil {
				slog.Warn("close stores", "error", err)
			}
		}()
		return fn(cmd, args)
	}
}

// NewRootCmd builds the sheetctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "sheetctl",
		Short: "Import spreadsheets into SQL and MongoDB stores",
		Long: `sheetctl imports CSV and Excel files into a relational database, a MongoDB
database, or both, inferring a schema from the header row.

Stores are configured through the same environment variables as the server
(DATABASE_DRIVER, DATABASE_URL, MONGO_URI, MONGO_DATABASE, ...). A .env file
in the working directory is loaded first.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newTargetsCmd(a))
	cmd.AddCommand(newExportCmd(a))

	return cmd
}
