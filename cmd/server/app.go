package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tobin/anthology-api/internal/api"
	"github.com/tobin/anthology-api/internal/config"
	"github.com/tobin/anthology-api/internal/generation"
	"github.com/tobin/anthology-api/internal/pipeline"
	"github.com/tobin/anthology-api/internal/platform/llm"
	"github.com/tobin/anthology-api/internal/platform/logger"
	"github.com/tobin/anthology-api/internal/platform/memstore"
	"github.com/tobin/anthology-api/internal/platform/postgres"
	"github.com/tobin/anthology-api/internal/queue"
	"github.com/tobin/anthology-api/internal/service"
	"github.com/tobin/anthology-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

// application holds the wired components of one server process.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	sweeper *queue.Sweeper
	router  http.Handler
	cleanup func()
}

// newApplication loads configuration and wires every component: store,
// queue manager, balancer, sweeper, completion client, pipeline, and the
// HTTP surface.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"backend", cfg.Database.Backend,
		"llm_provider", cfg.LLM.Provider)

	candidateStore, cleanup, err := openCandidateStore(cfg, log)
	if err != nil {
		return nil, err
	}

	manager, err := queue.NewManager(candidateStore, queue.ManagerConfig{
		PendingTTL:     cfg.Queue.PendingTTL(),
		StaleThreshold: cfg.Queue.StaleThreshold(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue manager: %w", err)
	}

	balancer, err := queue.NewBalancer(candidateStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create balancer: %w", err)
	}

	completer, err := llm.NewCompleter(ctx, cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	planner, err := generation.NewPlanner(completer, cfg.LLM.ModelName, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}
	sectionWriter, err := generation.NewSectionWriter(completer, cfg.LLM.ModelName, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create section writer: %w", err)
	}

	orchestrator, err := pipeline.NewOrchestrator(planner, sectionWriter, pipeline.Config{
		WriterCount: cfg.Pipeline.WriterCount,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	synthesizer, err := service.NewSynthesizer(manager, balancer, orchestrator, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	router := api.NewRouter(
		api.NewQueueHandler(manager, balancer),
		api.NewArticleHandler(synthesizer, log),
	)

	return &application{
		cfg:     cfg,
		logger:  log,
		sweeper: queue.NewSweeper(manager, cfg.Queue.SweepInterval(), log),
		router:  router,
		cleanup: cleanup,
	}, nil
}

// openCandidateStore builds the configured store backend, running
// migrations for postgres. The returned cleanup closes the backend's
// resources.
func openCandidateStore(cfg *config.Config, log *slog.Logger) (store.CandidateStore, func(), error) {
	switch cfg.Database.Backend {
	case "memory":
		log.Warn("using in-memory candidate store, data will not survive restarts")
		return memstore.NewCandidateStore(), func() {}, nil

	case "postgres":
		db, err := openDatabase(cfg.Database.URL, log)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCandidateStore(db, log), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

// run starts the sweeper and the HTTP server, then blocks until the
// context is canceled and shutdown completes.
func (app *application) run(ctx context.Context) error {
	defer app.cleanup()

	app.sweeper.Start()
	defer app.sweeper.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
