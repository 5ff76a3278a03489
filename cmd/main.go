package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Lantern-Tales/server/internal/config"
	"Lantern-Tales/server/internal/engine"
	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/logging"
	"Lantern-Tales/server/internal/persistence"
	"Lantern-Tales/server/internal/progress"
	"Lantern-Tales/server/internal/scenes"
	"Lantern-Tales/server/internal/storage"
	"Lantern-Tales/server/internal/web"
)

func main() {
	// Load configuration
	path := os.Getenv("LANTERN_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: %s not found, using defaults", path)
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Save backend
	store, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal("Failed to open save backend", zap.String("backend", cfg.Save.Backend), zap.Error(err))
	}
	defer store.Close()
	logger.Info("Save backend ready", zap.String("backend", cfg.Save.Backend), zap.String("slot", cfg.Save.Slot))

	persister := persistence.NewPersister(store, cfg.Save.Slot, logger)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	state, err := persister.Load(loadCtx)
	cancelLoad()
	if err != nil {
		// The default state is already in hand; a broken record must not stop the game.
		logger.Warn("Starting from default progress", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewEventBus()
	dispatcher := events.NewDispatcher(bus, cfg.Queue.MaxQueueSize, logger)
	dispatcher.Start(context.Background())

	eng := engine.NewProgressionEngine(bus, progress.NewStore(state), persister, engine.Config{
		TotalLevels:    cfg.Progress.TotalLevels,
		TotalChapters:  cfg.Progress.TotalChapters,
		ChapterEndings: cfg.Progress.ChapterEndings,
		Development:    cfg.Progress.Development(),
	}, logger)

	director := scenes.NewDirector(bus, scenes.NewCatalog(cfg.Scenes), logger)
	hub := web.NewTransitionHub(dispatcher.Submit, director.Current, logger)
	director.AddSink(hub)
	go hub.Run(ctx)

	// Subscriptions are made on the dispatcher goroutine like every other bus call.
	if err := dispatcher.Do(ctx, func() {
		eng.Start()
		director.Start()
	}); err != nil {
		logger.Fatal("Failed to start progression engine", zap.Error(err))
	}

	router := web.NewRouter(web.Deps{
		Config:     cfg,
		Bus:        bus,
		Dispatcher: dispatcher,
		Engine:     eng,
		Persister:  persister,
		Director:   director,
		Hub:        hub,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.Int("levels", cfg.Progress.TotalLevels),
			zap.Int("chapters", cfg.Progress.TotalChapters),
			zap.String("mode", cfg.Progress.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := dispatcher.Do(shutdownCtx, func() {
		director.Stop()
		eng.Stop()
	}); err != nil {
		logger.Warn("Failed to stop engine cleanly", zap.Error(err))
	}
	if err := persister.Flush(shutdownCtx); err != nil {
		logger.Error("Progress not saved", zap.String("slot", persister.Slot()), zap.Error(err))
	}
	dispatcher.Stop()
	cancel()

	logger.Info("Server exited")
}
