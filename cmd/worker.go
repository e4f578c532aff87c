package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/factharbor/verify-cli/internal/jobstore"
	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/runner"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process verification jobs from the job store",
	Long:  "Polls the external job store for queued verification jobs, runs each through the analysis pipeline, and writes results and status updates back.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		jobs := jobstore.NewClient(cfg.JobStore.BaseURL,
			jobstore.WithAdminKey(cfg.JobStore.AdminKey))

		exec := runner.ExecutorFunc(func(ctx context.Context, job *model.Job) (string, error) {
			result, err := env.Pipeline.Run(ctx, job.InputText, job.Variant)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(result)
			if err != nil {
				return "", eris.Wrap(err, "marshal result")
			}
			return string(data), nil
		})

		r := runner.New(runner.Config{
			MaxConcurrency:     cfg.Runner.MaxConcurrency,
			MaxSlowConcurrency: cfg.Runner.MaxSlowConcurrency,
			QueueMaxWait:       time.Duration(cfg.Runner.QueueMaxWaitHours) * time.Hour,
			StaleThreshold:     time.Duration(cfg.Runner.StaleThresholdMins) * time.Minute,
			WatchdogInterval:   time.Duration(cfg.Runner.WatchdogSecs) * time.Second,
		}, jobs, exec, env.Health)

		// Pick up whatever the store already holds, then let the watchdog
		// keep polling.
		r.RecoverStale(ctx)
		r.Start(ctx)
		r.Drain(ctx)

		zap.L().Info("worker started",
			zap.Int("max_concurrency", cfg.Runner.MaxConcurrency))

		<-ctx.Done()
		zap.L().Info("worker shutting down, waiting for in-flight jobs")
		r.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
