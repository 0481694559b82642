// Package domain contains the core domain types and state machine logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTerminalDeployment = errors.New("deployment is in a terminal state")
	ErrProjectRequired    = errors.New("project ID is required")
	ErrBranchRequired     = errors.New("branch is required")
	ErrNoPriorDeployment  = errors.New("no prior deployed record to roll back to")
)

// =============================================================================
// Deployment Status
// =============================================================================

// DeploymentStatus is the closed set of orchestration states. The only valid
// transitions are the ones listed in validTransitions; in particular a record
// can never move from queued straight to a terminal state without passing
// through validating_credential and attempting.
type DeploymentStatus string

const (
	StatusQueued               DeploymentStatus = "queued"
	StatusValidatingCredential DeploymentStatus = "validating_credential"
	StatusAttempting           DeploymentStatus = "attempting"
	StatusDeployed             DeploymentStatus = "deployed"
	StatusNeedsSetup           DeploymentStatus = "needs_setup"
	StatusFailed               DeploymentStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case StatusDeployed, StatusNeedsSetup, StatusFailed:
		return true
	default:
		return false
	}
}

// validTransitions defines the allowed state transitions.
// attempting -> attempting models advancing to the next fallback strategy.
var validTransitions = map[DeploymentStatus][]DeploymentStatus{
	StatusQueued:               {StatusValidatingCredential},
	StatusValidatingCredential: {StatusAttempting, StatusNeedsSetup, StatusFailed},
	StatusAttempting:           {StatusAttempting, StatusDeployed, StatusNeedsSetup, StatusFailed},
	StatusDeployed:             {},
	StatusNeedsSetup:           {},
	StatusFailed:               {},
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DeploymentStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	if from.Terminal() {
		return ErrTerminalDeployment
	}
	return ErrInvalidTransition
}

// =============================================================================
// Log Entries
// =============================================================================

// LogLevel classifies a deployment log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// LogEntry is one line of the append-only deployment log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// =============================================================================
// Build Configuration
// =============================================================================

// BuildConfiguration describes how a repository is built and started.
// Named, typed fields rather than an open-ended mapping.
type BuildConfiguration struct {
	InstallCommand  string `json:"install_command,omitempty"`
	BuildCommand    string `json:"build_command,omitempty"`
	OutputDirectory string `json:"output_directory,omitempty"`
	StartCommand    string `json:"start_command,omitempty"`
}

// IsZero reports whether no field is set.
func (c BuildConfiguration) IsZero() bool {
	return c == BuildConfiguration{}
}

// =============================================================================
// Deployment
// =============================================================================

// Deployment is one orchestration run of a project against a provider.
// The record is created when the run starts, mutated only by the
// orchestrator, and never deleted by the core.
type Deployment struct {
	ID              string             `json:"id"`
	ProjectID       string             `json:"project_id"`
	Provider        ProviderType       `json:"provider"`
	Branch          string             `json:"branch"`
	Commit          string             `json:"commit,omitempty"`
	Status          DeploymentStatus   `json:"status"`
	Strategy        string             `json:"strategy,omitempty"` // strategy that produced the terminal state
	Attempt         int                `json:"attempt"`            // 1-based index into the fallback chain
	BuildConfig     BuildConfiguration `json:"build_config"`
	LiveURL         string             `json:"live_url,omitempty"`
	Simulated       bool               `json:"simulated"`
	CancelRequested bool               `json:"cancel_requested,omitempty"`
	Reason          string             `json:"reason,omitempty"` // human-readable terminal reason
	Log             []LogEntry         `json:"log"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// GenerateDeploymentID generates a new deployment ID with "dep_" prefix.
func GenerateDeploymentID() string {
	return "dep_" + uuid.New().String()[:8]
}

// NewDeployment creates a queued deployment record.
func NewDeployment(projectID string, provider ProviderType, branch, commit string, cfg BuildConfiguration) (*Deployment, error) {
	if projectID == "" {
		return nil, ErrProjectRequired
	}
	if !provider.IsValid() {
		return nil, ErrInvalidProviderType
	}
	if branch == "" {
		return nil, ErrBranchRequired
	}

	now := time.Now().UTC()
	return &Deployment{
		ID:          GenerateDeploymentID(),
		ProjectID:   projectID,
		Provider:    provider,
		Branch:      branch,
		Commit:      commit,
		Status:      StatusQueued,
		BuildConfig: cfg,
		StartedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition attempts to move the deployment to a new status. Terminal
// statuses set CompletedAt.
func (d *Deployment) Transition(to DeploymentStatus) error {
	if err := ValidateTransition(d.Status, to); err != nil {
		return err
	}

	d.Status = to
	d.UpdatedAt = time.Now().UTC()

	if to.Terminal() {
		now := time.Now().UTC()
		d.CompletedAt = &now
	}
	return nil
}

// AppendLog appends an entry to the deployment log. Timestamps are clamped
// to be non-decreasing even if the wall clock steps backwards.
func (d *Deployment) AppendLog(level LogLevel, message string) {
	ts := time.Now().UTC()
	if n := len(d.Log); n > 0 && ts.Before(d.Log[n-1].Timestamp) {
		ts = d.Log[n-1].Timestamp
	}
	d.Log = append(d.Log, LogEntry{Timestamp: ts, Level: level, Message: message})
	d.UpdatedAt = ts
}

// =============================================================================
// Rollback
// =============================================================================

// RollbackFrom creates a new deployment record that restores a prior
// deployed record. Rollback is a data operation: the new record copies the
// prior branch, commit, build configuration and live URL and is terminal
// (deployed) immediately, without any provider calls.
func RollbackFrom(prior *Deployment) *Deployment {
	now := time.Now().UTC()
	d := &Deployment{
		ID:          GenerateDeploymentID(),
		ProjectID:   prior.ProjectID,
		Provider:    prior.Provider,
		Branch:      prior.Branch,
		Commit:      prior.Commit,
		Status:      StatusDeployed,
		Strategy:    "rollback",
		BuildConfig: prior.BuildConfig,
		LiveURL:     prior.LiveURL,
		Simulated:   prior.Simulated,
		StartedAt:   now,
		CompletedAt: &now,
		UpdatedAt:   now,
	}
	d.Log = []LogEntry{{
		Timestamp: now,
		Level:     LogSuccess,
		Message:   "rolled back to deployment " + prior.ID,
	}}
	return d
}
