package store

import (
	"context"
	"time"

	"github.com/artpar/launchpad/internal/core/detect"
	"github.com/artpar/launchpad/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for Launchpad entities.
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error)

	// Deployment operations. Deployment records are never deleted by the
	// core; updates come only from the orchestrator.
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeployment(ctx context.Context, id string) (*domain.Deployment, error)
	UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error
	ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error)
	ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error)
	ListDeploymentsByStatus(ctx context.Context, status domain.DeploymentStatus, opts ListOptions) ([]domain.Deployment, error)
	// LatestDeployedBefore returns the most recent record for the project
	// with status deployed that started strictly before the given time.
	LatestDeployedBefore(ctx context.Context, projectID string, before time.Time) (*domain.Deployment, error)

	// Credential operations. Only encrypted envelopes are ever stored.
	CreateCredential(ctx context.Context, cred *domain.Credential) error
	GetCredential(ctx context.Context, id string) (*domain.Credential, error)
	GetCredentialByOwnerProvider(ctx context.Context, ownerID string, provider domain.ProviderType) (*domain.Credential, error)
	UpdateCredential(ctx context.Context, cred *domain.Credential) error
	DeleteCredential(ctx context.Context, id string) error
	ListCredentialsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Credential, error)
	ListAllCredentials(ctx context.Context) ([]domain.Credential, error)

	// Analysis cache, keyed by (repository url, commit sha).
	GetAnalysis(ctx context.Context, repositoryURL, commit string) (*detect.Result, error)
	PutAnalysis(ctx context.Context, repositoryURL, commit string, result *detect.Result) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
