// Package main implements the analyze CLI for manual operations against the analysis backend.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/tickerlab/backend/internal/analyzer"
	"github.com/tickerlab/backend/internal/config"
	"github.com/tickerlab/backend/internal/db"
	"github.com/tickerlab/backend/internal/jobs"
	"github.com/tickerlab/backend/internal/logger"
	"github.com/tickerlab/backend/internal/services"
	"github.com/tickerlab/backend/internal/store"
	"gorm.io/gorm"
)

var (
	// localRedis swaps REDIS_URL for an in-memory server
	localRedis bool

	ticker       string
	trends       string
	startDate    string
	testSizePct  float64
	forecastDays int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Manual operations against the ticker analysis backend",
	Long: `analyze runs, queues and inspects stock analyses without going through the HTTP API.
It reads the same environment as the API and worker (DATABASE_URL, REDIS_URL, ANALYZER_*).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&localRedis, "local-redis", false, "use an in-memory Redis instead of REDIS_URL")

	for _, cmd := range []*cobra.Command{runCmd, enqueueCmd} {
		cmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol (required)")
		cmd.Flags().StringVar(&trends, "trends", "", "trend keywords passed to the model")
		cmd.Flags().StringVar(&startDate, "start-date", "", "first day of history, YYYY-MM-DD (required)")
		cmd.Flags().Float64Var(&testSizePct, "test-size-pct", analyzer.DefaultTestSizePct, "share of history held out for testing")
		cmd.Flags().IntVar(&forecastDays, "forecast-days", analyzer.DefaultForecastDays, "number of days to forecast")
		_ = cmd.MarkFlagRequired("ticker")
		_ = cmd.MarkFlagRequired("start-date")
	}

	rootCmd.AddCommand(runCmd, enqueueCmd, statusCmd, refreshCmd, migrateCmd)
}

// runCmd runs an analysis and waits for it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an analysis and wait for the analyzer to finish",
	Long: `Run an analysis synchronously, bounded by ANALYZER_SYNC_TIMEOUT.

Examples:
  analyze run --ticker AAPL --start-date 2023-01-02
  analyze run --ticker BTC-USD --trends bitcoin --start-date 2022-06-01 --forecast-days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		params, err := flagParams()
		if err != nil {
			return err
		}

		job, result, err := env.analysis.Run(cmd.Context(), params)
		if job != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "job %s\n", job.ID)
		}
		if result != nil && result.Output != "" {
			fmt.Fprint(cmd.OutOrStdout(), result.Output)
		}
		return err
	},
}

// enqueueCmd queues an analysis for the worker
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue an analysis for the worker and print its job id",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		params, err := flagParams()
		if err != nil {
			return err
		}

		job, err := env.analysis.Enqueue(cmd.Context(), params)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
		return nil
	},
}

// statusCmd prints a job record
var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Print the record of an analysis job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		job, err := env.analysis.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// refreshCmd queues the scheduled refresh right away
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Queue a fresh analysis for every tracked ticker",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		scheduler := jobs.NewScheduler(env.dispatcher, store.NewInstrumentStore(env.db), env.cfg.Worker.RefreshLookbackDays)
		n, err := scheduler.RefreshAll(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d analyses\n", n)
		return err
	},
}

// migrateCmd creates or updates the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// Connect migrates on open
		if _, err := db.Connect(cfg); err != nil {
			return err
		}
		logger.Info("✅ Schema is up to date")
		return nil
	},
}

type environment struct {
	cfg        *config.Config
	db         *gorm.DB
	redis      *redis.Client
	dispatcher *jobs.Dispatcher
	analysis   *services.AnalysisService
	close      func()
}

func setup() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var (
		redisClient *redis.Client
		mr          *miniredis.Miniredis
	)
	if localRedis {
		mr, err = miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start in-memory redis: %w", err)
		}
		redisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	} else {
		redisClient, err = db.ConnectRedis(cfg)
		if err != nil {
			return nil, err
		}
	}

	runAnalyzer, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return nil, err
	}

	jobStore := jobs.NewJobStore(gormDB, redisClient)
	dispatcher := jobs.NewDispatcher(jobStore, redisClient, cfg.Worker.QueueKey)
	runner := jobs.NewRunner(jobStore, runAnalyzer, cfg.Analyzer.SyncTimeout)

	return &environment{
		cfg:        cfg,
		db:         gormDB,
		redis:      redisClient,
		dispatcher: dispatcher,
		analysis:   services.NewAnalysisService(gormDB, runner, dispatcher),
		close: func() {
			_ = redisClient.Close()
			if mr != nil {
				mr.Close()
			}
		},
	}, nil
}

func flagParams() (analyzer.Params, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return analyzer.Params{}, fmt.Errorf("invalid --start-date %q: %w", startDate, err)
	}
	return analyzer.Params{
		Ticker:       ticker,
		Trends:       trends,
		StartDate:    start,
		TestSizePct:  testSizePct,
		ForecastDays: forecastDays,
	}, nil
}
