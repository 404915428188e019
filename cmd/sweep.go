package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/internal/jobs"
)

var sweepSchedule string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Revert stale processing jobs",
	Long:  "Runs the retry sweeper once, or on a cron schedule with --schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sweeper := jobs.NewSweeper(st, cfg.Jobs.StaleAfter, cfg.Jobs.RetryCeiling)

		if sweepSchedule == "" {
			report, err := sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("sweep done",
				zap.Int("scanned", report.Scanned),
				zap.Int("requeued", report.Requeued),
				zap.Int("failed", report.Failed),
			)
			return nil
		}

		c := cron.New()
		_, err = c.AddFunc(sweepSchedule, func() {
			if _, err := sweeper.Sweep(ctx); err != nil {
				zap.L().Error("scheduled sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}

		zap.L().Info("sweeper scheduled", zap.String("schedule", sweepSchedule))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepSchedule, "schedule", "", "cron schedule (e.g. \"*/5 * * * *\"); empty runs once")
	rootCmd.AddCommand(sweepCmd)
}
