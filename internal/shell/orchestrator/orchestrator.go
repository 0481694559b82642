// Package orchestrator drives deployment runs through the status state
// machine: credential validation, the provider strategy chain, and the
// terminal states. This is part of the Imperative Shell.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/shell/provider"
	"github.com/artpar/launchpad/internal/shell/store"
	"github.com/artpar/launchpad/internal/shell/vault"
)

var (
	// ErrRunInFlight means another run already holds this deployment.
	ErrRunInFlight = errors.New("deployment run already in flight")
)

// Config configures run execution.
type Config struct {
	// StrategyTimeout bounds a single strategy attempt.
	StrategyTimeout time.Duration

	// RetryBackoff is the pause before the single in-strategy retry of
	// a transient failure.
	RetryBackoff time.Duration

	// SimulatedStepDelay is the fixed latency of each simulated step.
	SimulatedStepDelay time.Duration
}

// DefaultConfig returns default run configuration.
func DefaultConfig() Config {
	return Config{
		StrategyTimeout:    10 * time.Minute,
		RetryBackoff:       2 * time.Second,
		SimulatedStepDelay: 300 * time.Millisecond,
	}
}

// adapterFactory builds an adapter for a stored credential. Injectable
// so tests can script strategy outcomes.
type adapterFactory func(*domain.Credential) (provider.Adapter, error)

// Orchestrator executes deployment runs.
type Orchestrator struct {
	store      store.Store
	vault      *vault.Vault
	adapterFor adapterFactory
	config     Config
	logger     *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// New creates an orchestrator.
func New(s store.Store, v *vault.Vault, config Config, logger *slog.Logger) *Orchestrator {
	if config.StrategyTimeout == 0 {
		config.StrategyTimeout = 10 * time.Minute
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if config.SimulatedStepDelay == 0 {
		config.SimulatedStepDelay = 300 * time.Millisecond
	}

	return &Orchestrator{
		store:      s,
		vault:      v,
		adapterFor: v.AdapterFor,
		config:     config,
		logger:     logger.With("component", "orchestrator"),
		active:     map[string]struct{}{},
	}
}

// acquire registers a deployment as running. At most one run per
// deployment ID may be in flight at a time.
func (o *Orchestrator) acquire(deploymentID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.active[deploymentID]; running {
		return ErrRunInFlight
	}
	o.active[deploymentID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(deploymentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, deploymentID)
}

// Launch starts a run in the background.
func (o *Orchestrator) Launch(deploymentID string) error {
	if err := o.acquire(deploymentID); err != nil {
		return err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(deploymentID)
		if err := o.run(context.Background(), deploymentID); err != nil {
			o.logger.Error("run failed", "deployment_id", deploymentID, "error", err)
		}
	}()
	return nil
}

// Run executes a run synchronously. Used by the dispatcher worker and
// by tests; Launch is the API-facing entry point.
func (o *Orchestrator) Run(ctx context.Context, deploymentID string) error {
	if err := o.acquire(deploymentID); err != nil {
		return err
	}
	defer o.release(deploymentID)
	return o.run(ctx, deploymentID)
}

// Wait blocks until all launched runs finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run drives one deployment from queued to a terminal state. Every
// status change is appended to the record's log and persisted before
// the next step begins.
func (o *Orchestrator) run(ctx context.Context, deploymentID string) error {
	d, err := o.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return domain.ErrTerminalDeployment
	}

	logger := o.logger.With("deployment_id", d.ID, "project_id", d.ProjectID, "provider", d.Provider)
	logger.Info("run started")

	cred, err := o.validateCredential(ctx, d)
	if err != nil {
		return err
	}
	if cred == nil {
		// validateCredential already moved the record to failed.
		return nil
	}

	if d.Simulated {
		return o.runSimulated(ctx, d, logger)
	}

	adapter, err := o.adapterFor(cred)
	if err != nil {
		return o.fail(ctx, d, "credential could not be opened: "+err.Error())
	}

	identity, err := adapter.ValidateCredential(ctx)
	if err != nil {
		return o.fail(ctx, d, "credential rejected: "+err.Error())
	}
	d.AppendLog(domain.LogInfo, "credential validated as "+identity)
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}

	return o.runStrategies(ctx, d, adapter, logger)
}

// validateCredential moves the record into validating_credential, loads
// the owner's credential for the target provider, and derives the
// simulated flag. Returns (nil, nil) after recording a failure.
func (o *Orchestrator) validateCredential(ctx context.Context, d *domain.Deployment) (*domain.Credential, error) {
	if err := d.Transition(domain.StatusValidatingCredential); err != nil {
		return nil, err
	}
	d.AppendLog(domain.LogInfo, "validating "+d.Provider.DisplayName()+" credential")
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return nil, err
	}

	project, err := o.store.GetProject(ctx, d.ProjectID)
	if err != nil {
		return nil, o.fail(ctx, d, "project not found")
	}

	cred, err := o.store.GetCredentialByOwnerProvider(ctx, project.OwnerID, d.Provider)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A missing credential needs user action, not a retry.
			return nil, o.needsSetup(ctx, d, "connect a "+d.Provider.DisplayName()+" account to deploy this project")
		}
		return nil, err
	}
	if err := cred.Usable(time.Now().UTC()); err != nil {
		return nil, o.fail(ctx, d, d.Provider.DisplayName()+" credential has expired")
	}

	// The simulated flag is derived exactly once, here, and never
	// re-evaluated for the rest of the run.
	d.Simulated = cred.IsDemo()
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return nil, err
	}
	return cred, nil
}

// runStrategies walks the adapter's strategy chain in order.
func (o *Orchestrator) runStrategies(ctx context.Context, d *domain.Deployment, adapter provider.Adapter, logger *slog.Logger) error {
	project, err := o.store.GetProject(ctx, d.ProjectID)
	if err != nil {
		return err
	}

	req := provider.DeployRequest{
		DeploymentID: d.ID,
		ProjectName:  project.Name,
		Repository: domain.RepositoryRef{
			URL:    project.RepositoryURL,
			Branch: d.Branch,
			Commit: d.Commit,
		},
		Build: d.BuildConfig,
	}

	strategies := adapter.Strategies()
	for i, strategy := range strategies {
		cancelled, err := o.cancelRequested(ctx, d)
		if err != nil {
			return err
		}
		if cancelled {
			return o.fail(ctx, d, "cancelled by user")
		}

		if err := d.Transition(domain.StatusAttempting); err != nil {
			return err
		}
		d.Attempt = i + 1
		d.Strategy = strategy.Name
		d.AppendLog(domain.LogInfo, fmt.Sprintf("attempt %d: %s", d.Attempt, strategy.Name))
		if err := o.store.UpdateDeployment(ctx, d); err != nil {
			return err
		}

		result, err := o.attempt(ctx, adapter, strategy.Name, req)
		if err != nil {
			switch provider.KindOf(err) {
			case provider.KindCapability, provider.KindTransient:
				d.AppendLog(domain.LogWarning, fmt.Sprintf("strategy %s unavailable: %v", strategy.Name, err))
				if err := o.store.UpdateDeployment(ctx, d); err != nil {
					return err
				}
				logger.Warn("strategy fell through", "strategy", strategy.Name, "error", err)
				continue
			default:
				return o.fail(ctx, d, fmt.Sprintf("strategy %s failed: %v", strategy.Name, err))
			}
		}

		if result.RequiresSetup() {
			return o.needsSetup(ctx, d, result.SetupInstructions)
		}

		d.LiveURL = result.LiveURL
		d.AppendLog(domain.LogSuccess, "deployed via "+strategy.Name+" at "+result.LiveURL)
		if err := d.Transition(domain.StatusDeployed); err != nil {
			return err
		}
		if err := o.store.UpdateDeployment(ctx, d); err != nil {
			return err
		}
		logger.Info("run deployed", "strategy", strategy.Name, "live_url", result.LiveURL)
		return nil
	}

	// Exhaustion means the last strategy itself fell through. Manual
	// setup is only offered by a strategy result, never by running out
	// of strategies.
	return o.fail(ctx, d, "no deployment strategy could serve this workload")
}

// attempt runs one strategy with a timeout and a single retry of
// transient failures.
func (o *Orchestrator) attempt(ctx context.Context, adapter provider.Adapter, strategy string, req provider.DeployRequest) (*provider.DeployResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.config.StrategyTimeout)
	defer cancel()

	var result *provider.DeployResult
	backoff := retry.WithMaxRetries(1, retry.NewConstant(o.config.RetryBackoff))
	err := retry.Do(attemptCtx, backoff, func(ctx context.Context) error {
		var err error
		result, err = adapter.Deploy(ctx, strategy, req)
		if err != nil && provider.Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
		// The per-strategy deadline expired while the run is still
		// live. The next strategy in the chain may still serve.
		return nil, provider.NewError(provider.KindCapability, string(adapter.Type()), strategy, "strategy timed out", err)
	}
	return result, err
}

// runSimulated plays out a deterministic successful run with fixed
// latency per step and no provider calls.
func (o *Orchestrator) runSimulated(ctx context.Context, d *domain.Deployment, logger *slog.Logger) error {
	project, err := o.store.GetProject(ctx, d.ProjectID)
	if err != nil {
		return err
	}

	if err := d.Transition(domain.StatusAttempting); err != nil {
		return err
	}
	d.Attempt = 1
	d.Strategy = "simulated"
	d.AppendLog(domain.LogInfo, "demo credential: simulating deployment")
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}

	steps := []string{
		"fetching " + project.RepositoryURL + " at " + d.Branch,
		"building application",
		"provisioning simulated runtime",
	}
	for _, step := range steps {
		cancelled, err := o.cancelRequested(ctx, d)
		if err != nil {
			return err
		}
		if cancelled {
			return o.fail(ctx, d, "cancelled by user")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.config.SimulatedStepDelay):
		}
		d.AppendLog(domain.LogInfo, step)
		if err := o.store.UpdateDeployment(ctx, d); err != nil {
			return err
		}
	}

	d.LiveURL = "https://" + project.Name + ".demo.launchpad.dev"
	d.AppendLog(domain.LogSuccess, "simulated deployment live at "+d.LiveURL)
	if err := d.Transition(domain.StatusDeployed); err != nil {
		return err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}
	logger.Info("simulated run deployed", "live_url", d.LiveURL)
	return nil
}

// cancelRequested reloads the cancel flag from the store so a Cancel
// issued from another goroutine is observed before the next step.
func (o *Orchestrator) cancelRequested(ctx context.Context, d *domain.Deployment) (bool, error) {
	fresh, err := o.store.GetDeployment(ctx, d.ID)
	if err != nil {
		return false, err
	}
	d.CancelRequested = fresh.CancelRequested
	return d.CancelRequested, nil
}

// Cancel marks a running deployment for cancellation. The flag is
// honored before the next strategy or simulated step begins.
func (o *Orchestrator) Cancel(ctx context.Context, deploymentID string) error {
	d, err := o.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return domain.ErrTerminalDeployment
	}
	d.CancelRequested = true
	d.AppendLog(domain.LogWarning, "cancellation requested")
	return o.store.UpdateDeployment(ctx, d)
}

func (o *Orchestrator) fail(ctx context.Context, d *domain.Deployment, reason string) error {
	d.Reason = reason
	d.AppendLog(domain.LogError, reason)
	if err := d.Transition(domain.StatusFailed); err != nil {
		return err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}
	o.logger.Info("run failed", "deployment_id", d.ID, "reason", reason)
	return nil
}

func (o *Orchestrator) needsSetup(ctx context.Context, d *domain.Deployment, instructions string) error {
	d.Reason = instructions
	d.AppendLog(domain.LogWarning, "manual setup required: "+instructions)
	if err := d.Transition(domain.StatusNeedsSetup); err != nil {
		return err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}
	o.logger.Info("run needs setup", "deployment_id", d.ID)
	return nil
}
