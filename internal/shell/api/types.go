package api

import (
	"encoding/json"
	"time"

	"github.com/artpar/launchpad/internal/core/detect"
	"github.com/artpar/launchpad/internal/core/domain"
)

// =============================================================================
// Common Responses
// =============================================================================

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Analysis
// =============================================================================

// AnalyzeRequest asks for a repository to be fetched and analyzed.
// CostBias optionally names a preferred cost band ("low", "medium" or
// "high") that weighs into the provider ranking.
type AnalyzeRequest struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	CostBias      string `json:"cost_bias,omitempty"`
}

// AnalysisResponse carries the detection result for one commit. Cached is
// true when the result was served from the analysis cache without
// re-scanning the repository.
type AnalysisResponse struct {
	RepositoryURL string        `json:"repository_url"`
	Branch        string        `json:"branch"`
	Commit        string        `json:"commit"`
	Cached        bool          `json:"cached"`
	Result        detect.Result `json:"result"`
}

// =============================================================================
// Projects
// =============================================================================

// CreateProjectRequest registers a repository as a project.
type CreateProjectRequest struct {
	Name          string `json:"name"`
	RepositoryURL string `json:"repository_url"`
	DefaultBranch string `json:"default_branch"`
}

// ProjectResponse is the API representation of a project.
type ProjectResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	RepositoryURL string    `json:"repository_url"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListProjectsResponse is a paginated list of projects.
type ListProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// =============================================================================
// Deployments
// =============================================================================

// CreateDeploymentRequest queues a new orchestration run.
type CreateDeploymentRequest struct {
	ProjectID   string                     `json:"project_id"`
	Provider    string                     `json:"provider"`
	Branch      string                     `json:"branch"`
	Commit      string                     `json:"commit,omitempty"`
	BuildConfig domain.BuildConfiguration  `json:"build_config,omitempty"`
}

// LogEntryResponse is one line of a deployment log.
type LogEntryResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// DeploymentResponse is the API representation of a deployment record.
type DeploymentResponse struct {
	ID          string                    `json:"id"`
	ProjectID   string                    `json:"project_id"`
	Provider    string                    `json:"provider"`
	Branch      string                    `json:"branch"`
	Commit      string                    `json:"commit,omitempty"`
	Status      string                    `json:"status"`
	Strategy    string                    `json:"strategy,omitempty"`
	Attempt     int                       `json:"attempt"`
	BuildConfig domain.BuildConfiguration `json:"build_config"`
	LiveURL     string                    `json:"live_url,omitempty"`
	Simulated   bool                      `json:"simulated"`
	Reason      string                    `json:"reason,omitempty"`
	Log         []LogEntryResponse        `json:"log"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// ListDeploymentsResponse is a paginated list of deployments.
type ListDeploymentsResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// =============================================================================
// Credentials
// =============================================================================

// ConnectCredentialRequest connects a provider credential for the caller.
// Secret carries the provider-specific JSON secret material; for demo
// credentials it may be omitted.
type ConnectCredentialRequest struct {
	Provider string          `json:"provider"`
	Secret   json.RawMessage `json:"secret,omitempty"`
	Demo     bool            `json:"demo"`
}

// CredentialResponse is the API representation of a stored credential.
// Secret material never appears here, only validation metadata.
type CredentialResponse struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Mode      string     `json:"mode"`
	Identity  string     `json:"identity,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
}

// ListCredentialsResponse is the caller's connected credentials.
type ListCredentialsResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
	Total       int                  `json:"total"`
}
