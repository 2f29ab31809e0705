package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
	"github.com/kamrulh4/auraops/internal/shell/api"
	"github.com/kamrulh4/auraops/internal/shell/certs"
	"github.com/kamrulh4/auraops/internal/shell/docker"
	"github.com/kamrulh4/auraops/internal/shell/image"
	"github.com/kamrulh4/auraops/internal/shell/nginx"
	"github.com/kamrulh4/auraops/internal/shell/orchestrator"
	"github.com/kamrulh4/auraops/internal/shell/provision"
	"github.com/kamrulh4/auraops/internal/shell/store"
	"github.com/kamrulh4/auraops/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitCertsError      = 5
)

// =============================================================================
// Server
// =============================================================================

// Server represents the AuraOps application server.
type Server struct {
	config        *Config
	httpServer    *http.Server
	store         store.Store
	docker        docker.Client
	orchestrator  *orchestrator.Orchestrator
	certRenewer   *workers.CertRenewer
	healthMonitor *workers.HealthMonitor
	logger        *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.MasterSecret == "" {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      errors.New("auth.master_secret is required, set AURAOPS_AUTH_MASTER_SECRET"),
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

	// Connect to Docker
	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify Docker connection
	if err := d.Ping(context.Background()); err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Reverse proxy manager, writing per-host server blocks and driving
	// the local nginx binary with validate-before-reload.
	proxyManager := nginx.NewManager(cfg.Nginx.ConfDir, corenginx.Params{
		WebrootDir: cfg.Nginx.WebrootDir,
		CertDir:    cfg.Nginx.CertDir,
	}, &nginx.CommandReloader{Bin: cfg.Nginx.Bin}, logger)

	// ACME certificate manager, loads or creates the account key on disk.
	certManager, err := certs.NewManager(certs.Config{
		DirectoryURL: cfg.ACME.DirectoryURL,
		Email:        cfg.ACME.Email,
		WebrootDir:   cfg.Nginx.WebrootDir,
		CertDir:      cfg.Nginx.CertDir,
	}, s, logger)
	if err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitCertsError,
		}
	}

	// Image acquisition (registry pull, git build, static build, compose)
	images := image.NewProvider(d, logger, cfg.Deploy.WorkDir)

	// Deployment orchestrator
	orch := orchestrator.New(s, d, images, proxyManager, orchestrator.Config{
		MaxConcurrent: cfg.Deploy.MaxConcurrent,
		HealthTimeout: cfg.Deploy.HealthTimeout,
		StopTimeout:   cfg.Deploy.StopTimeout,
		RetryBase:     cfg.Deploy.RetryBase,
	}, logger)

	// Managed service provisioner
	provisioner := provision.NewProvisioner(s, orch, cfg.Auth.MasterSecret, logger)

	// Background workers
	certRenewer := workers.NewCertRenewer(s, certManager, workers.CertRenewerConfig{
		Interval:    cfg.Workers.RenewInterval,
		RenewWindow: cfg.Workers.RenewWindow,
	}, logger)
	healthMonitor := workers.NewHealthMonitor(s, d, workers.HealthMonitorConfig{
		Interval:      cfg.Workers.HealthInterval,
		MaxConcurrent: cfg.Workers.HealthMaxConcurrent,
	}, logger)

	// HTTP API
	sessions := api.NewSessions(cfg.Auth.MasterSecret, cfg.Auth.SessionTTL)
	handler := api.NewHandler(s, d, orch, certManager, provisioner, sessions, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:        cfg,
		httpServer:    httpServer,
		store:         s,
		docker:        d,
		orchestrator:  orch,
		certRenewer:   certRenewer,
		healthMonitor: healthMonitor,
		logger:        logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Fail deployments left over from a previous run before accepting
	// new work, then reconcile the proxy with the surviving projects.
	if err := s.orchestrator.RecoverySweep(ctx); err != nil {
		s.logger.Error("recovery sweep failed", "error", err)
	}
	if err := s.orchestrator.PublishRoutes(ctx); err != nil {
		s.logger.Error("route reconciliation failed", "error", err)
	}

	// Start background workers
	s.certRenewer.Start()
	s.healthMonitor.Start()

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

	// Stop accepting requests first, then drain the deploy queue so
	// in-flight deployments record a terminal state.
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.orchestrator.Shutdown()

	// Stop background workers
	s.certRenewer.Stop()
	s.healthMonitor.Stop()

	// Close Docker client
	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

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
