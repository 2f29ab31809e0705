// Package workers contains background workers for AuraOps.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Certificate Renewal Worker
// =============================================================================

// Renewer re-issues a certificate for one domain.
type Renewer interface {
	Renew(ctx context.Context, d *domain.Domain) error
}

// CertRenewerConfig configures the renewal worker.
type CertRenewerConfig struct {
	// Interval is the time between renewal sweeps.
	// Default: 12 hours.
	Interval time.Duration

	// RenewWindow is how close to expiry a certificate must be to renew.
	// Default: 30 days.
	RenewWindow time.Duration
}

// DefaultCertRenewerConfig returns the default configuration.
func DefaultCertRenewerConfig() CertRenewerConfig {
	return CertRenewerConfig{
		Interval:    12 * time.Hour,
		RenewWindow: 30 * 24 * time.Hour,
	}
}

// CertRenewer periodically scans for certificates nearing expiry and renews
// them one at a time. A failed renewal moves the domain to the failed state
// with a retry backoff; the next sweep picks it up again once eligible.
type CertRenewer struct {
	store   store.Store
	renewer Renewer
	config  CertRenewerConfig
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCertRenewer creates a certificate renewal worker.
func NewCertRenewer(s store.Store, renewer Renewer, config CertRenewerConfig, logger *slog.Logger) *CertRenewer {
	if config.Interval == 0 {
		config.Interval = 12 * time.Hour
	}
	if config.RenewWindow == 0 {
		config.RenewWindow = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CertRenewer{
		store:   s,
		renewer: renewer,
		config:  config,
		logger:  logger.With("component", "cert_renewer"),
	}
}

// Start begins the renewal background goroutine.
func (r *CertRenewer) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("certificate renewer started",
		"interval", r.config.Interval,
		"renew_window", r.config.RenewWindow,
	)
}

// Stop gracefully stops the worker, waiting for an in-progress sweep.
func (r *CertRenewer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("certificate renewer stopped")
}

func (r *CertRenewer) run() {
	defer r.wg.Done()

	// Run immediately on start
	r.RunCycle()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle()
		}
	}
}

// RunCycle executes one renewal sweep. Exported so the server can trigger a
// sweep on demand.
func (r *CertRenewer) RunCycle() {
	base := r.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, r.config.Interval)
	defer cancel()

	domains, err := r.store.ListExpiringDomains(ctx, r.config.RenewWindow)
	if err != nil {
		r.logger.Error("failed to list expiring domains", "error", err)
		return
	}

	if len(domains) == 0 {
		return
	}

	r.logger.Info("starting renewal sweep", "expiring", len(domains))

	for i := range domains {
		d := &domains[i]
		if ctx.Err() != nil {
			return
		}

		if err := r.renewer.Renew(ctx, d); err != nil {
			r.logger.Error("renewal failed",
				"hostname", d.Hostname,
				"error", err,
			)
			continue
		}
		r.logger.Info("certificate renewed", "hostname", d.Hostname)
	}
}
