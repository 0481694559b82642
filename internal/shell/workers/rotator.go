package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/launchpad/internal/shell/vault"
)

// RotatorConfig configures the credential rotator worker.
type RotatorConfig struct {
	Interval time.Duration
}

// DefaultRotatorConfig returns default configuration.
func DefaultRotatorConfig() RotatorConfig {
	return RotatorConfig{Interval: 24 * time.Hour}
}

// Rotator periodically re-seals every stored credential envelope under
// a fresh salt and nonce. Rotation is best effort per credential.
type Rotator struct {
	vault  *vault.Vault
	config RotatorConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRotator creates a rotator worker.
func NewRotator(v *vault.Vault, config RotatorConfig, logger *slog.Logger) *Rotator {
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Rotator{
		vault:  v,
		config: config,
		logger: logger.With("component", "rotator"),
	}
}

// Start begins the rotator background goroutine.
func (r *Rotator) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.wg.Add(1)
	go r.run()
	r.logger.Info("rotator started", "interval", r.config.Interval)
}

// Stop gracefully stops the rotator.
func (r *Rotator) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("rotator stopped")
}

func (r *Rotator) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runCycle()
		}
	}
}

func (r *Rotator) runCycle() {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Minute)
	defer cancel()

	results, err := r.vault.RotateAll(ctx)
	if err != nil {
		r.logger.Error("rotation cycle failed", "error", err)
		return
	}

	rotated, failed := 0, 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			r.logger.Warn("credential rotation failed", "credential_id", result.CredentialID, "error", result.Err)
			continue
		}
		rotated++
	}
	if rotated+failed > 0 {
		r.logger.Info("rotation cycle complete", "rotated", rotated, "failed", failed)
	}
}
