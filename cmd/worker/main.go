package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/audit"
	"carbon-scribe/credit-ledger/internal/bootstrap"
	"carbon-scribe/credit-ledger/internal/config"
	"carbon-scribe/credit-ledger/internal/mrv"
)

const jobTimeout = 10 * time.Minute

func main() {
	configPath := flag.String("config", os.Getenv("CARBON_CONFIG"), "path to a config file")
	runOnce := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise services", zap.Error(err))
	}
	defer app.Close()

	retry := scoringRetryJob(ctx, app.Services.Tracker, cfg.Worker.ScoringRetryBatch, logger)
	reconcile := auditJob(ctx, cfg, logger)

	if *runOnce {
		retry()
		reconcile()
		return
	}

	scheduler := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := scheduler.AddFunc(cfg.Worker.ScoringRetrySchedule, retry); err != nil {
		logger.Fatal("invalid scoring retry schedule", zap.String("schedule", cfg.Worker.ScoringRetrySchedule), zap.Error(err))
	}
	if _, err := scheduler.AddFunc(cfg.Worker.AuditSchedule, reconcile); err != nil {
		logger.Fatal("invalid audit schedule", zap.String("schedule", cfg.Worker.AuditSchedule), zap.Error(err))
	}

	scheduler.Start()
	logger.Info("Worker started",
		zap.String("scoring_retry_schedule", cfg.Worker.ScoringRetrySchedule),
		zap.String("audit_schedule", cfg.Worker.AuditSchedule),
	)

	<-ctx.Done()
	logger.Info("Shutting down worker...")
	<-scheduler.Stop().Done()
	logger.Info("Worker exiting")
}

func scoringRetryJob(ctx context.Context, tracker *mrv.Tracker, batch int, logger *zap.Logger) func() {
	return func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		scored, err := tracker.RetryScoring(jobCtx, batch)
		if err != nil {
			logger.Error("scoring retry failed", zap.Error(err))
			return
		}
		if scored > 0 {
			logger.Info("scoring retry completed", zap.Int("scored", scored))
		}
	}
}

// auditJob checks the ledger invariants against Postgres. The memory store has
// no shared state to audit, so the job is a no-op there.
func auditJob(ctx context.Context, cfg *config.Config, logger *zap.Logger) func() {
	return func() {
		if cfg.Database.Driver != "postgres" {
			logger.Debug("audit skipped", zap.String("driver", cfg.Database.Driver))
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		source, err := audit.Connect(jobCtx, cfg.Database.GetDatabaseURL())
		if err != nil {
			logger.Error("audit connect failed", zap.Error(err))
			return
		}
		defer source.Close()

		result, err := audit.NewReconciler(source, logger).Run(jobCtx)
		if err != nil {
			logger.Error("audit failed", zap.Error(err))
			return
		}
		if !result.OK() {
			logger.Error("ledger invariants violated",
				zap.Int("findings", len(result.Findings)),
				zap.Int("batches_checked", result.BatchesChecked),
			)
		}
	}
}
