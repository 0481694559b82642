// Package provider implements deployment adapters for cloud providers.
// This is part of the Imperative Shell - handles I/O with cloud APIs.
package provider

import (
	"context"

	"github.com/artpar/launchpad/internal/core/domain"
)

// Strategy describes one deployment approach an adapter can attempt.
// Adapters expose an ordered chain; earlier strategies are preferred.
type Strategy struct {
	Name        string
	Description string

	// Manual marks strategies that hand off to the user instead of
	// producing a live URL. A manual strategy always ends the chain.
	Manual bool
}

// DeployRequest contains everything an adapter needs to run one strategy.
type DeployRequest struct {
	DeploymentID string
	ProjectName  string
	Repository   domain.RepositoryRef
	Build        domain.BuildConfiguration
}

// DeployResult is the outcome of a successful strategy attempt.
type DeployResult struct {
	// LiveURL is the public URL of the running application. Empty when
	// the strategy ended in manual setup.
	LiveURL string

	// SetupInstructions is non-empty for manual strategies and tells
	// the user how to finish the deployment themselves.
	SetupInstructions string
}

// RequiresSetup reports whether the result hands off to the user.
func (r *DeployResult) RequiresSetup() bool {
	return r.SetupInstructions != ""
}

// Adapter defines the interface for provider deployment backends.
type Adapter interface {
	// Type identifies the provider this adapter targets.
	Type() domain.ProviderType

	// ValidateCredential checks the credential against the live API and
	// returns an account identity string for display.
	ValidateCredential(ctx context.Context) (string, error)

	// Strategies returns the ordered strategy chain for this provider.
	Strategies() []Strategy

	// Deploy runs a single named strategy. Errors carry an ErrorKind so
	// the caller can decide between retrying, falling through to the
	// next strategy, and aborting.
	Deploy(ctx context.Context, strategy string, req DeployRequest) (*DeployResult, error)
}
