package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/analysis"
	"github.com/jstittsworth/auction-copilot/internal/coordinator"
	"github.com/jstittsworth/auction-copilot/internal/draft"
	"github.com/jstittsworth/auction-copilot/internal/models"
	"github.com/jstittsworth/auction-copilot/internal/projections"
	"github.com/jstittsworth/auction-copilot/internal/store"
	"github.com/jstittsworth/auction-copilot/internal/transport"
	"github.com/jstittsworth/auction-copilot/internal/valuation"
	"github.com/jstittsworth/auction-copilot/internal/view"
	"github.com/jstittsworth/auction-copilot/pkg/config"
	"github.com/jstittsworth/auction-copilot/pkg/database"
	"github.com/jstittsworth/auction-copilot/pkg/logger"
)

func main() {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger(cfg.IsDevelopment())
	log.WithFields(logrus.Fields{
		"league":  cfg.LeagueName,
		"teams":   cfg.TeamCount,
		"budget":  cfg.StartingBudget,
		"my_team": cfg.MyTeamID,
	}).Info("Starting auction copilot")

	db, err := database.NewConnection(cfg.DatabasePath, cfg.IsDevelopment())
	if err != nil {
		if errors.Is(err, database.ErrDatabaseLocked) {
			log.Fatal("Draft database is locked by another engine process")
		}
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	st, err := store.New(db, log)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	loader := projections.NewLoader(cfg.DefaultHoldRate, log)
	players, err := loader.Load(projections.Files{
		Hitters:          cfg.HittersFile,
		StartingPitchers: cfg.StartingPitchersFile,
		ReliefPitchers:   cfg.ReliefPitchersFile,
		ADP:              cfg.ADPFile,
		Holds:            cfg.HoldsFile,
	})
	if err != nil {
		log.Fatalf("Failed to load projections: %v", err)
	}

	league := cfg.LeagueSettings()
	pipeline := valuation.NewPipeline(valuation.Config{
		League:                league,
		HitterCategories:      models.HitterCategories(cfg.CategoryWeights),
		PitcherCategories:     models.PitcherCategories(cfg.CategoryWeights),
		HittingBudgetFraction: cfg.HittingBudgetFraction,
		ReplacementCushion:    cfg.ReplacementCushion,
	}, players, log)
	pipeline.Recompute()

	state, err := st.Replay(league, pipeline, log)
	if err != nil {
		log.Fatalf("Failed to replay draft state: %v", err)
	}
	machine := draft.NewMachine(state, pipeline, log)
	pipeline.RecomputeInflation(state)

	publisher := view.NewPublisher()

	llmClient := analysis.NewClient(cfg, log)
	analyzer := analysis.NewPipeline(llmClient, analysis.Events{
		OnChunk:    func(_, chunk string) { publisher.AppendAnalysisChunk(chunk) },
		OnComplete: func(_, full string) { publisher.CompleteAnalysis(full) },
		OnError:    func(_ string, err error) { publisher.FailAnalysis(err.Error()) },
	}, log)

	coord := coordinator.New(cfg, machine, pipeline, st, analyzer, publisher, log)

	server := transport.NewServer(cfg.WebsocketPort, coord.SubmitSnapshot, log)
	if err := server.Start(); err != nil {
		if errors.Is(err, transport.ErrPortInUse) {
			log.Fatalf("Websocket port %d is already in use", cfg.WebsocketPort)
		}
		log.Fatalf("Failed to start transport: %v", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CheckpointSchedule, coord.RequestCheckpoint); err != nil {
		log.Fatalf("Invalid checkpoint schedule %q: %v", cfg.CheckpointSchedule, err)
	}
	scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- coord.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	scheduler.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Transport shutdown error")
	}

	cancel()
	if err := <-runErr; err != nil {
		log.WithError(err).Error("Coordinator shutdown error")
	}

	if coord.Diverged() {
		log.Error("Exiting after unresolved history divergence")
		db.Close()
		os.Exit(2)
	}
	log.Info("Engine exited")
}
