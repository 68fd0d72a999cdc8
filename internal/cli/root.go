// Package cli wires the quotafarm commands. The commands are thin: argument
// handling and composition only, with all behavior in the application
// services.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mstolpe/quotafarm/internal/adapter/driven/ledgerapi"
	"github.com/mstolpe/quotafarm/internal/adapter/driven/site"
	"github.com/mstolpe/quotafarm/internal/adapter/driven/sqlite"
	"github.com/mstolpe/quotafarm/internal/config"
)

// version is set via ldflags at build time.
var version = "dev"

// NewRootCmd builds the quotafarm command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quotafarm",
		Short:         "Account checkin and credential rotation for the target service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCheckinCmd())
	root.AddCommand(newRotateCmd())
	return root
}

// Execute runs the CLI and exits 1 on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// buildLedger creates the ledger client from config.
func buildLedger(cfg *config.Config) (*ledgerapi.Client, error) {
	return ledgerapi.NewClient(cfg.LedgerURL, cfg.LedgerToken)
}

// buildSite creates the target-site client from config.
func buildSite(cfg *config.Config) (*site.Client, error) {
	return site.NewClient(cfg.SiteURL, site.Options{
		NavTimeout: cfg.NavTimeout,
		DelayMin:   cfg.ActionDelayMin,
		DelayMax:   cfg.ActionDelayMax,
	})
}

// openJournal opens the local run journal and applies migrations.
func openJournal(cfg *config.Config) (*sqlite.DB, *sqlite.RunRepo, error) {
	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := sqlite.RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, sqlite.NewRunRepo(db), nil
}
