// Package workers contains background goroutines: the run dispatcher
// and the credential rotator.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/shell/orchestrator"
	"github.com/artpar/launchpad/internal/shell/store"
)

// DispatcherConfig configures the dispatcher worker.
type DispatcherConfig struct {
	Interval      time.Duration
	MaxConcurrent int
}

// DefaultDispatcherConfig returns default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Interval:      5 * time.Second,
		MaxConcurrent: 3,
	}
}

// Dispatcher polls for queued deployments and runs them. It also picks
// up runs left queued by a previous process.
type Dispatcher struct {
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	config       DispatcherConfig
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher worker.
func NewDispatcher(s store.Store, o *orchestrator.Orchestrator, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.Interval == 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		store:        s,
		orchestrator: o,
		config:       config,
		logger:       logger.With("component", "dispatcher"),
	}
}

// Start begins the dispatcher background goroutine.
func (d *Dispatcher) Start() {
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.run()
	d.logger.Info("dispatcher started", "interval", d.config.Interval, "max_concurrent", d.config.MaxConcurrent)
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	// Run immediately on start
	d.runCycle()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runCycle()
		}
	}
}

func (d *Dispatcher) runCycle() {
	ctx, cancel := context.WithTimeout(d.ctx, 15*time.Minute)
	defer cancel()

	queued, err := d.store.ListDeploymentsByStatus(ctx, domain.StatusQueued, store.DefaultListOptions())
	if err != nil {
		d.logger.Error("failed to list queued deployments", "error", err)
		return
	}
	if len(queued) == 0 {
		return
	}

	d.logger.Debug("dispatching queued deployments", "count", len(queued))

	sem := make(chan struct{}, d.config.MaxConcurrent)
	var wg sync.WaitGroup

	for i := range queued {
		deployment := &queued[i]
		wg.Add(1)
		go func(dep *domain.Deployment) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}
			d.dispatch(ctx, dep.ID)
		}(deployment)
	}

	wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, deploymentID string) {
	err := d.orchestrator.Run(ctx, deploymentID)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrRunInFlight):
		// Someone else already owns this run.
	case errors.Is(err, domain.ErrTerminalDeployment):
	default:
		d.logger.Error("dispatched run failed", "deployment_id", deploymentID, "error", err)
	}
}
