package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/artpar/launchpad/internal/core/domain"
)

// HetznerAdapter deploys to Hetzner Cloud servers via cloud-init.
type HetznerAdapter struct {
	client *hcloud.Client
	logger *slog.Logger
}

// NewHetznerAdapter creates a new Hetzner Cloud adapter.
func NewHetznerAdapter(apiToken string, logger *slog.Logger) *HetznerAdapter {
	return &HetznerAdapter{
		client: hcloud.NewClient(hcloud.WithToken(apiToken)),
		logger: logger.With("provider", "hetzner"),
	}
}

func (a *HetznerAdapter) Type() domain.ProviderType {
	return domain.ProviderHetzner
}

// ValidateCredential checks the token by listing locations.
func (a *HetznerAdapter) ValidateCredential(ctx context.Context) (string, error) {
	locations, err := a.client.Location.All(ctx)
	if err != nil {
		return "", a.classify(err, "", "failed to list locations")
	}
	return fmt.Sprintf("hetzner-cloud (%d locations)", len(locations)), nil
}

// Strategies returns the server strategy chain.
func (a *HetznerAdapter) Strategies() []Strategy {
	return []Strategy{
		{Name: "server-cloud-init", Description: "Cloud server bootstrapped from the repository via cloud-init"},
		{Name: "manual-server", Description: "Manual setup on a self-managed server", Manual: true},
	}
}

// Deploy runs a single Hetzner strategy.
func (a *HetznerAdapter) Deploy(ctx context.Context, strategy string, req DeployRequest) (*DeployResult, error) {
	switch strategy {
	case "server-cloud-init":
		return a.deployServer(ctx, req)
	case "manual-server":
		return &DeployResult{
			SetupInstructions: "Create a server at https://console.hetzner.cloud, clone " +
				req.Repository.URL + " on branch " + req.Repository.Branch + ", and start the application with: " +
				req.Build.StartCommand,
		}, nil
	default:
		return nil, NewError(KindFatal, "hetzner", strategy, "unknown strategy", nil)
	}
}

func (a *HetznerAdapter) deployServer(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if req.Build.StartCommand == "" {
		return nil, NewError(KindCapability, "hetzner", "server-cloud-init", "workload has no start command", nil)
	}

	serverType, _, err := a.client.ServerType.GetByName(ctx, "cx22")
	if err != nil {
		return nil, a.classify(err, "server-cloud-init", "failed to resolve server type")
	}
	if serverType == nil {
		return nil, NewError(KindCapability, "hetzner", "server-cloud-init", "server type cx22 unavailable", nil)
	}

	image, _, err := a.client.Image.GetByNameAndArchitecture(ctx, "ubuntu-24.04", hcloud.ArchitectureX86)
	if err != nil {
		return nil, a.classify(err, "server-cloud-init", "failed to resolve image")
	}
	if image == nil {
		return nil, NewError(KindCapability, "hetzner", "server-cloud-init", "ubuntu image unavailable", nil)
	}

	result, _, err := a.client.Server.Create(ctx, hcloud.ServerCreateOpts{
		Name:       req.ProjectName + "-" + req.DeploymentID,
		ServerType: serverType,
		Image:      image,
		UserData:   bootstrapScript(req),
		Labels: map[string]string{
			"managed-by": "launchpad",
			"deployment": req.DeploymentID,
		},
	})
	if err != nil {
		return nil, a.classify(err, "server-cloud-init", "failed to create server")
	}

	a.logger.Info("server created", "server_id", result.Server.ID, "deployment_id", req.DeploymentID)

	publicIP, err := a.waitForPublicIP(ctx, result.Server.ID)
	if err != nil {
		return nil, a.classify(err, "server-cloud-init", "failed waiting for public IP")
	}
	return &DeployResult{LiveURL: "http://" + publicIP}, nil
}

func (a *HetznerAdapter) waitForPublicIP(ctx context.Context, serverID int64) (string, error) {
	for i := 0; i < 60; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}

		server, _, err := a.client.Server.GetByID(ctx, serverID)
		if err != nil || server == nil {
			continue
		}
		if server.Status == hcloud.ServerStatusRunning && !server.PublicNet.IPv4.IP.IsUnspecified() {
			return server.PublicNet.IPv4.IP.String(), nil
		}
	}
	return "", errors.New("timed out waiting for server public IP")
}

// classify maps hcloud errors onto the shared error kinds.
func (a *HetznerAdapter) classify(err error, strategy, message string) error {
	var apiErr hcloud.Error
	if errors.As(err, &apiErr) {
		var kind ErrorKind
		switch apiErr.Code {
		case hcloud.ErrorCodeUnauthorized, hcloud.ErrorCodeForbidden, hcloud.ErrorCodeTokenReadonly:
			kind = KindAuth
		case hcloud.ErrorCodeRateLimitExceeded, hcloud.ErrorCodeConflict, hcloud.ErrorCodeServerError, hcloud.ErrorCodeMaintenance:
			kind = KindTransient
		case hcloud.ErrorCodeNotFound, hcloud.ErrorCodeInvalidInput, hcloud.ErrorCodeResourceUnavailable, hcloud.ErrorCodeResourceLimitExceeded:
			kind = KindCapability
		default:
			kind = KindFatal
		}
		return NewError(kind, "hetzner", strategy, fmt.Sprintf("%s: %s", message, apiErr.Message), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || isNetworkError(err) {
		return NewError(KindTransient, "hetzner", strategy, message, err)
	}
	return NewError(KindFatal, "hetzner", strategy, message, err)
}

// bootstrapScript builds a cloud-init script that clones the repository
// and runs the detected build and start commands.
func bootstrapScript(req DeployRequest) string {
	script := "#!/bin/bash\nset -e\napt-get update -y\napt-get install -y git nodejs npm\n"
	script += fmt.Sprintf("git clone --depth 1 --branch %s %s /srv/app\ncd /srv/app\n", req.Repository.Branch, req.Repository.URL)
	if req.Build.InstallCommand != "" {
		script += req.Build.InstallCommand + "\n"
	}
	if req.Build.BuildCommand != "" {
		script += req.Build.BuildCommand + "\n"
	}
	script += fmt.Sprintf("nohup %s > /var/log/app.log 2>&1 &\n", req.Build.StartCommand)
	return script
}
