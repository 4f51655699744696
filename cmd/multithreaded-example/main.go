package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stealthcompany.com/docstore/internal/config"
	"stealthcompany.com/docstore/internal/diagnostics"
	"stealthcompany.com/docstore/internal/metrics"
	"stealthcompany.com/docstore/internal/orchestrator"
	"stealthcompany.com/docstore/internal/workload"
	"stealthcompany.com/docstore/pkg/couchbase"
	"stealthcompany.com/docstore/pkg/zerolog_config"
)

func main() {
	cfg := config.Load()
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd layers command line flags over the environment-derived defaults.
func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "multithreaded-example",
		Short:        "Run the workload concurrently from several workers sharing one client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Couchbase.URL, "connection-string", cfg.Couchbase.URL, "Couchbase connection string")
	flags.StringVar(&cfg.Couchbase.Username, "username", cfg.Couchbase.Username, "cluster username")
	flags.StringVar(&cfg.Couchbase.Password, "password", cfg.Couchbase.Password, "cluster password")
	flags.StringVar(&cfg.Couchbase.Bucket, "bucket", cfg.Couchbase.Bucket, "bucket name prefix, worker N uses <bucket>N")
	flags.IntVar(&cfg.Workload.Workers, "workers", cfg.Workload.Workers, "number of concurrent workers")
	flags.IntVar(&cfg.Workload.DocumentCount, "documents", cfg.Workload.DocumentCount, "documents per pipeline batch")
	return cmd
}

func run(cfg *config.Config) error {
	zerolog_config.SetAppPrefix("multithreaded-example")
	if err := zerolog_config.Startup(cfg.Log.ElasticsearchURL, "logs", cfg.Log.Level); err != nil {
		return err
	}

	log.Info().Msg("Starting docstore multithreaded example")

	// Start system metrics collection
	metrics.StartSystemMetricsCollection("multithreaded-example")

	// Serve /health and /metrics while the workload runs
	diagServer := diagnostics.Start(cfg.Diagnostics.Port)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := diagServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Diagnostics server shutdown failed")
		}
	}()

	ctx, cancel := orchestrator.NewSignalHandler().ShutdownContext(context.Background())
	defer cancel()

	// One shared client for all workers; each worker targets its own bucket.
	client := couchbase.New()
	err := client.InitializeWithOptions(cfg.Couchbase.URL, cfg.Couchbase.Username, cfg.Couchbase.Password, &couchbase.ConnectOptions{
		ConnectTimeout: cfg.Couchbase.ConnectTimeout,
		KVTimeout:      cfg.Couchbase.KVTimeout,
		QueryTimeout:   cfg.Couchbase.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize couchbase client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close couchbase client")
		}
	}()

	pool := orchestrator.NewWorkerPool(cfg.Workload.Workers)
	runners := make([]*workload.Runner, pool.Size())

	runErr := pool.Run(ctx, func(ctx context.Context, workerID int) error {
		bucket := fmt.Sprintf("%s%d", cfg.Couchbase.Bucket, workerID)
		if err := client.WaitUntilReady(bucket, cfg.Couchbase.ConnectTimeout); err != nil {
			return err
		}

		ks := couchbase.Keyspace{
			Bucket:     bucket,
			Scope:      cfg.Couchbase.Scope,
			Collection: cfg.Couchbase.Collection,
		}
		runner := workload.NewRunner(client, ks, cfg.Workload.DocumentCount)
		runners[workerID] = runner
		return runner.Run(ctx)
	})

	// Print per-worker summaries even when a worker bailed out early.
	failures := 0
	for workerID, runner := range runners {
		if runner == nil {
			continue
		}
		fmt.Fprintf(os.Stdout, "\nWorker %d (%s%d)\n", workerID, cfg.Couchbase.Bucket, workerID)
		if err := runner.WriteSummary(os.Stdout); err != nil {
			return err
		}
		failures += runner.Failures()
	}

	if runErr != nil {
		return runErr
	}
	if failures > 0 {
		log.Warn().Int("failures", failures).Msg("Workload finished with failed steps")
	} else {
		log.Info().Msg("All workers completed successfully")
	}
	return nil
}
