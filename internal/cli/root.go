// Package cli holds the reportctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ledgerreports/internal/app"
	"ledgerreports/internal/config"
	"ledgerreports/internal/log"
	"ledgerreports/internal/services"
	"ledgerreports/internal/storage"
)

// env is the state shared by every subcommand, filled in by the root's
// PersistentPreRunE.
type env struct {
	envFile string
	cfg     *config.Config
	logger  *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "reportctl",
		Short: "Operate the ledger report pipeline",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		newGenerateCommand(e),
		newStatusCommand(e),
		newRequeueCommand(e),
		newRunOnceCommand(e),
		newStatsCommand(e),
		newWatchCommand(e),
	)

	return rootCmd
}

func (e *env) load() error {
	// A missing dotenv file is fine; the environment may already be set.
	if _, err := os.Stat(e.envFile); err == nil {
		if err := godotenv.Load(e.envFile); err != nil {
			return fmt.Errorf("loading %s: %w", e.envFile, err)
		}
	}

	e.cfg = config.Load()
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	e.logger = app.NewLogger(e.cfg).WithComponent(log.ComponentCLI)
	return nil
}

// withService opens only the request store, for commands that never
// process reports.
func (e *env) withService(fn func(*services.ReportService) error) error {
	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer repo.Close()
	return fn(services.NewReportService(repo))
}

// withApp opens the full pipeline.
func (e *env) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.New(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
