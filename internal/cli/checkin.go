package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mstolpe/quotafarm/internal/application"
	"github.com/mstolpe/quotafarm/internal/config"
)

func newCheckinCmd() *cobra.Command {
	var (
		once    bool
		dryRun  bool
		limit   int
		history int
	)

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Run checkin passes over eligible accounts",
		Long: "Fetches accounts due for a daily checkin from the ledger and drives a\n" +
			"scripted login and checkin for each, strictly sequentially. Without\n" +
			"--once it keeps running passes on the configured interval.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if limit > 0 {
				cfg.CheckinLimit = limit
			}

			if history > 0 {
				return printHistory(cmd.Context(), cfg, history)
			}

			ledger, err := buildLedger(cfg)
			if err != nil {
				return err
			}
			acquirer, err := buildSite(cfg)
			if err != nil {
				return err
			}
			db, journal, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					slog.Error("error closing journal database", "error", closeErr)
				}
			}()

			svc := application.NewCheckinService(ledger, acquirer, journal, application.CheckinOptions{
				Limit:             cfg.CheckinLimit,
				AccountDelayMin:   cfg.AccountDelayMin,
				AccountDelayMax:   cfg.AccountDelayMax,
				Interval:          cfg.CheckinInterval,
				ReferenceLocation: cfg.CheckinTZ,
				DryRun:            dryRun,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if once || dryRun {
				summary, err := svc.RunOnce(ctx)
				if err != nil {
					return err
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d accounts failed", summary.Failed, summary.Eligible)
				}
				return nil
			}

			slog.Info("checkin daemon started", "interval", cfg.CheckinInterval, "limit", cfg.CheckinLimit)
			svc.Start(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log the eligible set without driving any sessions")
	cmd.Flags().IntVar(&limit, "limit", 0, "override the per-pass eligible-account limit")
	cmd.Flags().IntVar(&history, "history", 0, "print the last N journaled runs and exit")
	return cmd
}

// printHistory dumps recent runs and their per-account outcomes from the
// local journal.
func printHistory(ctx context.Context, cfg *config.Config, n int) error {
	db, journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := journal.ListRuns(ctx, n)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  eligible=%d succeeded=%d failed=%d skipped=%d\n",
			run.StartedAt.Format("2006-01-02 15:04:05"), run.ReferenceDate,
			run.Eligible, run.Succeeded, run.Failed, run.Skipped)
		outcomes, err := journal.ListOutcomes(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			status := "ok"
			if o.ErrorReason != "" {
				status = o.ErrorReason
			}
			fmt.Printf("    %-20s session=%t checkin=%t delta=%+d  %s\n",
				o.Username, o.SessionOK, o.CheckinOK, o.BalanceDelta, status)
		}
	}
	return nil
}
