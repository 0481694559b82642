package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/shell/store"
)

// Rollback restores the deployment that was live before the current
// one. It is purely a record operation: a new, immediately-deployed
// record is created from the prior one's data and no provider API is
// ever called.
func (o *Orchestrator) Rollback(ctx context.Context, projectID string) (*domain.Deployment, error) {
	current, err := o.store.LatestDeployedBefore(ctx, projectID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNoPriorDeployment
		}
		return nil, err
	}

	prior, err := o.store.LatestDeployedBefore(ctx, projectID, current.StartedAt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNoPriorDeployment
		}
		return nil, err
	}

	rollback := domain.RollbackFrom(prior)
	if err := o.store.CreateDeployment(ctx, rollback); err != nil {
		return nil, err
	}

	o.logger.Info("rolled back",
		"project_id", projectID,
		"deployment_id", rollback.ID,
		"restored_from", prior.ID)
	return rollback, nil
}
