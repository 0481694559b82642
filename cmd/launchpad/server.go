package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/launchpad/internal/shell/api"
	"github.com/artpar/launchpad/internal/shell/orchestrator"
	"github.com/artpar/launchpad/internal/shell/repo"
	"github.com/artpar/launchpad/internal/shell/store"
	"github.com/artpar/launchpad/internal/shell/vault"
	"github.com/artpar/launchpad/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

// =============================================================================
// Server
// =============================================================================

// Server represents the Launchpad application server.
type Server struct {
	config       *Config
	httpServer   *http.Server
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	dispatcher   *workers.Dispatcher
	rotator      *workers.Rotator
	logger       *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if cfg.Vault.MasterSecret == "" {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      errors.New("vault.master_secret is required (set LAUNCHPAD_VAULT_MASTER_SECRET)"),
			ExitCode: ExitConfigError,
		}
	}

	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	v := vault.NewVault(s, []byte(cfg.Vault.MasterSecret), logger)

	o := orchestrator.New(s, v, orchestrator.Config{
		StrategyTimeout:    cfg.Orchestrator.StrategyTimeout,
		RetryBackoff:       cfg.Orchestrator.RetryBackoff,
		SimulatedStepDelay: cfg.Orchestrator.SimulatedStepDelay,
	}, logger)

	dispatcher := workers.NewDispatcher(s, o, workers.DispatcherConfig{
		Interval:      cfg.Dispatcher.Interval,
		MaxConcurrent: cfg.Dispatcher.MaxConcurrent,
	}, logger)

	var rotator *workers.Rotator
	if cfg.Rotator.Enabled {
		rotator = workers.NewRotator(v, workers.RotatorConfig{
			Interval: cfg.Rotator.Interval,
		}, logger)
	} else {
		logger.Info("credential rotation disabled")
	}

	handler := api.NewHandler(s, v, o, repo.NewFetcher(logger), logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:       cfg,
		httpServer:   httpServer,
		store:        s,
		orchestrator: o,
		dispatcher:   dispatcher,
		rotator:      rotator,
		logger:       logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start background workers. The dispatcher also re-runs deployments
	// left queued by a previous process.
	s.dispatcher.Start()
	if s.rotator != nil {
		s.rotator.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop background workers
	s.dispatcher.Stop()
	if s.rotator != nil {
		s.rotator.Stop()
	}

	// Let in-flight deployment runs reach a recorded state before the
	// store goes away.
	s.orchestrator.Wait()

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
