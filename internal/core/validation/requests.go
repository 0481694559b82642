// Package validation provides pure validation functions for API handlers.
//
// All functions are pure (no I/O, no side effects); handlers translate the
// returned field/message pairs into 400 responses.
package validation

import "strings"

// =============================================================================
// Analysis Validation
// =============================================================================

// ValidateAnalysisFields validates required fields for an analysis request.
// Returns the field name and error message if validation fails; empty
// strings if all fields are valid.
func ValidateAnalysisFields(repositoryURL, branch string) (field, message string) {
	if strings.TrimSpace(repositoryURL) == "" {
		return "repository_url", "repository_url is required"
	}
	if strings.TrimSpace(branch) == "" {
		return "branch", "branch is required"
	}
	return "", ""
}

// =============================================================================
// Project Validation
// =============================================================================

// ValidateCreateProjectFields validates required fields for project creation.
func ValidateCreateProjectFields(name, repositoryURL, ownerID string) (field, message string) {
	if strings.TrimSpace(name) == "" {
		return "name", "name is required"
	}
	if len(name) > 100 {
		return "name", "name must be at most 100 characters"
	}
	if strings.TrimSpace(repositoryURL) == "" {
		return "repository_url", "repository_url is required"
	}
	if strings.TrimSpace(ownerID) == "" {
		return "owner_id", "owner_id is required"
	}
	return "", ""
}

// =============================================================================
// Deployment Validation
// =============================================================================

// ValidateCreateDeploymentFields validates required fields for a deployment
// request.
func ValidateCreateDeploymentFields(projectID, provider, branch string) (field, message string) {
	if strings.TrimSpace(projectID) == "" {
		return "project_id", "project_id is required"
	}
	if strings.TrimSpace(provider) == "" {
		return "provider", "provider is required"
	}
	if strings.TrimSpace(branch) == "" {
		return "branch", "branch is required"
	}
	return "", ""
}

// =============================================================================
// Credential Validation
// =============================================================================

// ValidateConnectCredentialFields validates required fields for connecting a
// provider credential. A demo credential needs no secret material.
func ValidateConnectCredentialFields(provider, secret string, demo bool) (field, message string) {
	if strings.TrimSpace(provider) == "" {
		return "provider", "provider is required"
	}
	if !demo && strings.TrimSpace(secret) == "" {
		return "secret", "secret is required for real credentials"
	}
	return "", ""
}
