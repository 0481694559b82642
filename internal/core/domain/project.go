package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Project Errors
// =============================================================================

var (
	ErrProjectNameRequired = errors.New("project name is required")
	ErrProjectNameTooLong  = errors.New("project name must be at most 100 characters")
	ErrRepositoryRequired  = errors.New("repository URL is required")
)

// =============================================================================
// Project
// =============================================================================

// Project ties a source repository to its deployments.
type Project struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"-"`
	Name          string    `json:"name"`
	RepositoryURL string    `json:"repository_url"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GenerateProjectID generates a new project ID with "prj_" prefix.
func GenerateProjectID() string {
	return "prj_" + uuid.New().String()[:8]
}

// NewProject creates a project with validation.
func NewProject(ownerID, name, repositoryURL, defaultBranch string) (*Project, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrProjectNameRequired
	}
	if len(name) > 100 {
		return nil, ErrProjectNameTooLong
	}
	if strings.TrimSpace(repositoryURL) == "" {
		return nil, ErrRepositoryRequired
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}

	now := time.Now().UTC()
	return &Project{
		ID:            GenerateProjectID(),
		OwnerID:       ownerID,
		Name:          name,
		RepositoryURL: repositoryURL,
		DefaultBranch: defaultBranch,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// RepositoryRef identifies the exact source a deployment attempt targets.
type RepositoryRef struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Commit string `json:"commit,omitempty"`
}
