package api

import (
	"github.com/artpar/launchpad/internal/shell/api/openapi"
)

// newSpecGenerator registers every API resource with the reflective
// OpenAPI generator. The generated document is served at /openapi.json.
func newSpecGenerator() *openapi.Generator {
	g := openapi.NewGenerator(
		openapi.WithTitle("Launchpad API"),
		openapi.WithVersion("1.0.0"),
		openapi.WithDescription("Repository analysis, framework detection and deployment orchestration"),
		openapi.WithServer("http://localhost:8080"),
	)

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "analyses",
		Model:          AnalysisResponse{},
		RequestModel:   AnalyzeRequest{},
		SupportsCreate: true,
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "projects",
		Model:          ProjectResponse{},
		RequestModel:   CreateProjectRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsDelete: true,
		Actions: []openapi.ActionInfo{
			{Name: "rollback", Summary: "Roll back to the previous deployed record"},
		},
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "deployments",
		Model:          DeploymentResponse{},
		RequestModel:   CreateDeploymentRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		Actions: []openapi.ActionInfo{
			{Name: "cancel", Summary: "Request cancellation of a running deployment"},
		},
	})

	g.RegisterResource(openapi.ResourceInfo{
		Name:           "credentials",
		Model:          CredentialResponse{},
		RequestModel:   ConnectCredentialRequest{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsDelete: true,
	})

	return g
}
