package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/godo"

	"github.com/artpar/launchpad/internal/core/domain"
)

// DigitalOceanAdapter deploys to DigitalOcean App Platform.
type DigitalOceanAdapter struct {
	client *godo.Client
	logger *slog.Logger
}

// NewDigitalOceanAdapter creates a new DigitalOcean adapter.
func NewDigitalOceanAdapter(apiToken string, logger *slog.Logger) *DigitalOceanAdapter {
	return &DigitalOceanAdapter{
		client: godo.NewFromToken(apiToken),
		logger: logger.With("provider", "digitalocean"),
	}
}

func (a *DigitalOceanAdapter) Type() domain.ProviderType {
	return domain.ProviderDigitalOcean
}

// ValidateCredential checks the token against the account endpoint.
func (a *DigitalOceanAdapter) ValidateCredential(ctx context.Context) (string, error) {
	account, _, err := a.client.Account.Get(ctx)
	if err != nil {
		return "", a.classify(err, "", "failed to fetch account")
	}
	return account.Email, nil
}

// Strategies returns the App Platform strategy chain.
func (a *DigitalOceanAdapter) Strategies() []Strategy {
	return []Strategy{
		{Name: "app-git-link", Description: "App Platform service built from the git repository"},
		{Name: "static-site", Description: "App Platform static site from the build output directory"},
		{Name: "deploy-hook", Description: "Manual setup via the App Platform console", Manual: true},
	}
}

// Deploy runs a single App Platform strategy.
func (a *DigitalOceanAdapter) Deploy(ctx context.Context, strategy string, req DeployRequest) (*DeployResult, error) {
	switch strategy {
	case "app-git-link":
		return a.deployService(ctx, req)
	case "static-site":
		return a.deployStaticSite(ctx, req)
	case "deploy-hook":
		return &DeployResult{
			SetupInstructions: "Create an app at https://cloud.digitalocean.com/apps, link the repository " +
				req.Repository.URL + " on branch " + req.Repository.Branch + ", and trigger the first deploy from the console.",
		}, nil
	default:
		return nil, NewError(KindFatal, "digitalocean", strategy, "unknown strategy", nil)
	}
}

func (a *DigitalOceanAdapter) deployService(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.Build.StartCommand == "" {
		return nil, NewError(KindCapability, "digitalocean", "app-git-link", "workload has no start command", nil)
	}

	spec := &godo.AppSpec{
		Name: req.ProjectName,
		Services: []*godo.AppServiceSpec{
			{
				Name: req.ProjectName,
				Git: &godo.GitSourceSpec{
					RepoCloneURL: req.Repository.URL,
					Branch:       req.Repository.Branch,
				},
				BuildCommand:     req.Build.BuildCommand,
				RunCommand:       req.Build.StartCommand,
				InstanceCount:    1,
				InstanceSizeSlug: "basic-xxs",
				HTTPPort:         8080,
			},
		},
	}

	app, _, err := a.client.Apps.Create(ctx, &godo.AppCreateRequest{Spec: spec})
	if err != nil {
		return nil, a.classify(err, "app-git-link", "failed to create app")
	}

	a.logger.Info("app created", "app_id", app.ID, "deployment_id", req.DeploymentID)

	liveURL, err := a.waitForLiveURL(ctx, app.ID)
	if err != nil {
		return nil, a.classify(err, "app-git-link", "failed waiting for live URL")
	}
	return &DeployResult{LiveURL: liveURL}, nil
}

func (a *DigitalOceanAdapter) deployStaticSite(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.Build.OutputDirectory == "" {
		return nil, NewError(KindCapability, "digitalocean", "static-site", "workload has no build output directory", nil)
	}

	spec := &godo.AppSpec{
		Name: req.ProjectName,
		StaticSites: []*godo.AppStaticSiteSpec{
			{
				Name: req.ProjectName,
				Git: &godo.GitSourceSpec{
					RepoCloneURL: req.Repository.URL,
					Branch:       req.Repository.Branch,
				},
				BuildCommand: req.Build.BuildCommand,
				OutputDir:    req.Build.OutputDirectory,
			},
		},
	}

	app, _, err := a.client.Apps.Create(ctx, &godo.AppCreateRequest{Spec: spec})
	if err != nil {
		return nil, a.classify(err, "static-site", "failed to create static site")
	}

	a.logger.Info("static site created", "app_id", app.ID, "deployment_id", req.DeploymentID)

	liveURL, err := a.waitForLiveURL(ctx, app.ID)
	if err != nil {
		return nil, a.classify(err, "static-site", "failed waiting for live URL")
	}
	return &DeployResult{LiveURL: liveURL}, nil
}

func (a *DigitalOceanAdapter) waitForLiveURL(ctx context.Context, appID string) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		app, _, err := a.client.Apps.Get(ctx, appID)
		if err != nil {
			continue
		}
		if app.LiveURL != "" {
			return app.LiveURL, nil
		}
	}
	return "", errors.New("timed out waiting for app live URL")
}

// classify maps godo errors onto the shared error kinds.
func (a *DigitalOceanAdapter) classify(err error, strategy, message string) error {
	var apiErr *godo.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		kind := classifyHTTPStatus(apiErr.Response.StatusCode)
		return NewError(kind, "digitalocean", strategy, fmt.Sprintf("%s: %s", message, apiErr.Message), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetworkError(err) {
		return NewError(KindTransient, "digitalocean", strategy, message, err)
	}
	return NewError(KindFatal, "digitalocean", strategy, message, err)
}
