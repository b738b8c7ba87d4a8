package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petitionqc/voterd/internal/api"
	"github.com/petitionqc/voterd/internal/config"
	"github.com/petitionqc/voterd/internal/importer"
	"github.com/petitionqc/voterd/internal/logger"
	"github.com/petitionqc/voterd/internal/scheduler"
	"github.com/petitionqc/voterd/internal/shutdown"
	"github.com/petitionqc/voterd/internal/voterdb"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting voterd...")

	// Open the database (voters, job ledger, snapshot tables)
	store, err := voterdb.Open(cfg.Database.Path, logger.Get("voterdb"))
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}

	jobs := importer.NewJobStore(store.DB(), logger.Get("jobs"))
	snapshots := importer.NewSnapshotManager(store, logger.Get("snapshots"))

	rollbackWindow := time.Duration(cfg.Import.RollbackWindowHours) * time.Hour

	orch, err := importer.NewOrchestrator(&importer.OrchestratorConfig{
		Jobs:           jobs,
		Voters:         store,
		Snapshots:      snapshots,
		UploadDir:      cfg.Import.UploadDir,
		BatchSize:      cfg.Import.BatchSize,
		MaxConcurrent:  cfg.Import.MaxConcurrent,
		RollbackWindow: rollbackWindow,
		Logger:         logger.Get("importer"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create import orchestrator")
	}

	// Recover jobs left pending or running by a previous crash before
	// anything can touch the voter table.
	recovered, err := orch.RecoverStaleJobs(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to recover stale import jobs")
	}
	if recovered > 0 {
		log.Warn().Int("jobs", recovered).Msg("Recovered stale import jobs from previous run")
	}

	intake, err := importer.NewIntake(jobs, cfg.Import.UploadDir, logger.Get("intake"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize upload intake")
	}

	// Snapshot retention audit (logs reclaimable tables, never deletes)
	var auditor *scheduler.SnapshotAuditor
	if cfg.Snapshot.AuditSchedule != "" {
		auditor, err = scheduler.NewSnapshotAuditor(&scheduler.SnapshotAuditorConfig{
			Jobs:           jobs,
			Snapshots:      snapshots,
			RollbackWindow: rollbackWindow,
			Schedule:       cfg.Snapshot.AuditSchedule,
			Logger:         logger.Get("scheduler"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create snapshot auditor")
		}
		if err := auditor.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start snapshot auditor")
		}
	} else {
		log.Info().Msg("Snapshot audit disabled (empty schedule)")
	}

	// HTTP server
	server := api.NewServer(&api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimitMB:  cfg.Server.BodyLimitMB,
	}, logger.Get("api"))

	handler := api.NewImportHandler(jobs, orch, intake, store, logger.Get("api"))
	handler.RegisterRoutes(server.App())

	// Graceful shutdown: stop new uploads, stop the auditor, drain
	// workers, then close the database.
	coordinator := shutdown.New(60*time.Second, logger.Get("shutdown"))
	coordinator.RegisterHook("http-server", func(ctx context.Context) error {
		return server.Shutdown()
	}, shutdown.PriorityHTTPServer)
	if auditor != nil {
		coordinator.RegisterHook("snapshot-auditor", func(ctx context.Context) error {
			auditor.Stop()
			return nil
		}, shutdown.PriorityScheduler)
	}
	coordinator.RegisterHook("import-workers", func(ctx context.Context) error {
		return orch.Wait(ctx)
	}, shutdown.PriorityWorkers)
	coordinator.RegisterHook("database", func(ctx context.Context) error {
		return store.Close()
	}, shutdown.PriorityDatabase)

	go func() {
		if err := server.Listen(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			coordinator.TriggerShutdown()
		}
	}()

	coordinator.WaitForSignal()
	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
}
