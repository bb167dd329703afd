package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmzhao/zhisieve/app/api"
	"github.com/lmzhao/zhisieve/app/cfg"
	"github.com/lmzhao/zhisieve/app/dom"
	"github.com/lmzhao/zhisieve/app/engine"
	"github.com/lmzhao/zhisieve/app/stats"
	"github.com/lmzhao/zhisieve/app/store"
)

const emptyDocument = `<html><head></head><body></body></html>`

func main() {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if config == nil {
		// Help was requested
		return
	}

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("Starting zhisieve server", "version", config.Version)

	st, err := store.Open(config.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", config.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("Database ready", "path", config.DBPath)

	tracker := stats.NewTracker(st)
	if err := tracker.Load(context.Background()); err != nil {
		slog.Error("Failed to load stats", "error", err)
		os.Exit(1)
	}

	doc, err := dom.ParseString(emptyDocument)
	if err != nil {
		slog.Error("Failed to initialize document mirror", "error", err)
		os.Exit(1)
	}

	eng := engine.New(doc, st, tracker)
	defer eng.Close()

	if err := eng.ImportConfigFile(context.Background(), config.SeedConfig); err != nil {
		slog.Error("Failed to import seed configuration", "file", config.SeedConfig, "error", err)
		os.Exit(1)
	}

	eng.Subscribe(func(ev engine.Event) {
		slog.Debug("Engine event", "action", ev.Action, "type", ev.Type)
	})

	coordinator := engine.NewCoordinator(eng, engine.RealClock())
	coordinator.Start()
	defer coordinator.Stop()
	slog.Info("Mutation coordinator started")

	handler := api.NewHandler(eng, tracker)
	server := api.NewServer(handler, config.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", config.Port)
		slog.Info("Endpoints available",
			"document", fmt.Sprintf("http://localhost:%s/dom/document (POST)", config.Port),
			"mutations", fmt.Sprintf("http://localhost:%s/dom/mutations (POST)", config.Port),
			"commands", fmt.Sprintf("http://localhost:%s/commands (POST)", config.Port),
			"stats", fmt.Sprintf("http://localhost:%s/stats", config.Port),
			"health", fmt.Sprintf("http://localhost:%s/health", config.Port))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
