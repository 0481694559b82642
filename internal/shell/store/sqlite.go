package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/launchpad/internal/core/detect"
	"github.com/artpar/launchpad/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// SQLite serializes writes anyway, and an in-memory database exists
	// per connection; a single pooled connection keeps both correct.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Store Interface - Database Methods
// =============================================================================

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.db, project)
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return getProject(ctx, s.db, id)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return deleteProject(ctx, s.db, id)
}

func (s *SQLiteStore) ListProjects(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error) {
	return listProjects(ctx, s.db, ownerID, opts)
}

func (s *SQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return updateDeployment(ctx, s.db, deployment)
}

func (s *SQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error) {
	return listDeployments(ctx, s.db, opts)
}

func (s *SQLiteStore) ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByProject(ctx, s.db, projectID, opts)
}

func (s *SQLiteStore) ListDeploymentsByStatus(ctx context.Context, status domain.DeploymentStatus, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByStatus(ctx, s.db, status, opts)
}

func (s *SQLiteStore) LatestDeployedBefore(ctx context.Context, projectID string, before time.Time) (*domain.Deployment, error) {
	return latestDeployedBefore(ctx, s.db, projectID, before)
}

func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	return createCredential(ctx, s.db, cred)
}

func (s *SQLiteStore) GetCredential(ctx context.Context, id string) (*domain.Credential, error) {
	return getCredential(ctx, s.db, id)
}

func (s *SQLiteStore) GetCredentialByOwnerProvider(ctx context.Context, ownerID string, provider domain.ProviderType) (*domain.Credential, error) {
	return getCredentialByOwnerProvider(ctx, s.db, ownerID, provider)
}

func (s *SQLiteStore) UpdateCredential(ctx context.Context, cred *domain.Credential) error {
	return updateCredential(ctx, s.db, cred)
}

func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	return deleteCredential(ctx, s.db, id)
}

func (s *SQLiteStore) ListCredentialsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Credential, error) {
	return listCredentialsByOwner(ctx, s.db, ownerID, opts)
}

func (s *SQLiteStore) ListAllCredentials(ctx context.Context) ([]domain.Credential, error) {
	return listAllCredentials(ctx, s.db)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, repositoryURL, commit string) (*detect.Result, error) {
	return getAnalysis(ctx, s.db, repositoryURL, commit)
}

func (s *SQLiteStore) PutAnalysis(ctx context.Context, repositoryURL, commit string, result *detect.Result) error {
	return putAnalysis(ctx, s.db, repositoryURL, commit, result)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.tx, project)
}

func (s *txSQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return getProject(ctx, s.tx, id)
}

func (s *txSQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return deleteProject(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListProjects(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Project, error) {
	return listProjects(ctx, s.tx, ownerID, opts)
}

func (s *txSQLiteStore) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return createDeployment(ctx, s.tx, deployment)
}

func (s *txSQLiteStore) GetDeployment(ctx context.Context, id string) (*domain.Deployment, error) {
	return getDeployment(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	return updateDeployment(ctx, s.tx, deployment)
}

func (s *txSQLiteStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.Deployment, error) {
	return listDeployments(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListDeploymentsByProject(ctx context.Context, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByProject(ctx, s.tx, projectID, opts)
}

func (s *txSQLiteStore) ListDeploymentsByStatus(ctx context.Context, status domain.DeploymentStatus, opts ListOptions) ([]domain.Deployment, error) {
	return listDeploymentsByStatus(ctx, s.tx, status, opts)
}

func (s *txSQLiteStore) LatestDeployedBefore(ctx context.Context, projectID string, before time.Time) (*domain.Deployment, error) {
	return latestDeployedBefore(ctx, s.tx, projectID, before)
}

func (s *txSQLiteStore) CreateCredential(ctx context.Context, cred *domain.Credential) error {
	return createCredential(ctx, s.tx, cred)
}

func (s *txSQLiteStore) GetCredential(ctx context.Context, id string) (*domain.Credential, error) {
	return getCredential(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetCredentialByOwnerProvider(ctx context.Context, ownerID string, provider domain.ProviderType) (*domain.Credential, error) {
	return getCredentialByOwnerProvider(ctx, s.tx, ownerID, provider)
}

func (s *txSQLiteStore) UpdateCredential(ctx context.Context, cred *domain.Credential) error {
	return updateCredential(ctx, s.tx, cred)
}

func (s *txSQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	return deleteCredential(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListCredentialsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.Credential, error) {
	return listCredentialsByOwner(ctx, s.tx, ownerID, opts)
}

func (s *txSQLiteStore) ListAllCredentials(ctx context.Context) ([]domain.Credential, error) {
	return listAllCredentials(ctx, s.tx)
}

func (s *txSQLiteStore) GetAnalysis(ctx context.Context, repositoryURL, commit string) (*detect.Result, error) {
	return getAnalysis(ctx, s.tx, repositoryURL, commit)
}

func (s *txSQLiteStore) PutAnalysis(ctx context.Context, repositoryURL, commit string, result *detect.Result) error {
	return putAnalysis(ctx, s.tx, repositoryURL, commit, result)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Project Implementation
// =============================================================================

// projectRow represents a project row in the database.
type projectRow struct {
	ID            string `db:"id"`
	OwnerID       string `db:"owner_id"`
	Name          string `db:"name"`
	RepositoryURL string `db:"repository_url"`
	DefaultBranch string `db:"default_branch"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

func createProject(ctx context.Context, exec executor, project *domain.Project) error {
	query := `
		INSERT INTO projects (
			id, owner_id, name, repository_url, default_branch, created_at, updated_at
		) VALUES (
			:id, :owner_id, :name, :repository_url, :default_branch, :created_at, :updated_at
		)`

	row := map[string]any{
		"id":             project.ID,
		"owner_id":       project.OwnerID,
		"name":           project.Name,
		"repository_url": project.RepositoryURL,
		"default_branch": project.DefaultBranch,
		"created_at":     project.CreatedAt.Format(time.RFC3339),
		"updated_at":     project.UpdatedAt.Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.id") {
			return NewStoreError("CreateProject", "project", project.ID, "project with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateProject", "project", project.ID, err.Error(), err)
	}
	return nil
}

func getProject(ctx context.Context, exec executor, id string) (*domain.Project, error) {
	var row projectRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM projects WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetProject", "project", id, "project not found", ErrNotFound)
		}
		return nil, NewStoreError("GetProject", "project", id, err.Error(), err)
	}
	return rowToProject(&row), nil
}

func deleteProject(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("DeleteProject", "project", id, "project has deployments", ErrForeignKey)
		}
		return NewStoreError("DeleteProject", "project", id, err.Error(), err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return NewStoreError("DeleteProject", "project", id, "project not found", ErrNotFound)
	}
	return nil
}

func listProjects(ctx context.Context, exec executor, ownerID string, opts ListOptions) ([]domain.Project, error) {
	opts = opts.Normalize()

	var rows []projectRow
	var err error
	if ownerID == "" {
		err = exec.SelectContext(ctx, &rows,
			`SELECT * FROM projects ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	} else {
		err = exec.SelectContext(ctx, &rows,
			`SELECT * FROM projects WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
			ownerID, opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, NewStoreError("ListProjects", "project", "", err.Error(), err)
	}

	projects := make([]domain.Project, 0, len(rows))
	for i := range rows {
		projects = append(projects, *rowToProject(&rows[i]))
	}
	return projects, nil
}

func rowToProject(row *projectRow) *domain.Project {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)
	return &domain.Project{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Name:          row.Name,
		RepositoryURL: row.RepositoryURL,
		DefaultBranch: row.DefaultBranch,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// =============================================================================
// Deployment Implementation
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID              string  `db:"id"`
	ProjectID       string  `db:"project_id"`
	Provider        string  `db:"provider"`
	Branch          string  `db:"branch"`
	CommitSHA       string  `db:"commit_sha"`
	Status          string  `db:"status"`
	Strategy        string  `db:"strategy"`
	Attempt         int     `db:"attempt"`
	InstallCommand  string  `db:"install_command"`
	BuildCommand    string  `db:"build_command"`
	OutputDirectory string  `db:"output_directory"`
	StartCommand    string  `db:"start_command"`
	LiveURL         string  `db:"live_url"`
	Simulated       bool    `db:"simulated"`
	CancelRequested bool    `db:"cancel_requested"`
	Reason          string  `db:"reason"`
	Log             string  `db:"log"`
	StartedAt       string  `db:"started_at"`
	CompletedAt     *string `db:"completed_at"`
	UpdatedAt       string  `db:"updated_at"`
}

func deploymentToRowMap(deployment *domain.Deployment) (map[string]any, error) {
	logJSON, err := json.Marshal(deployment.Log)
	if err != nil {
		return nil, NewStoreError("deploymentToRowMap", "deployment", deployment.ID, "failed to serialize log", ErrInvalidData)
	}

	var completedAt *string
	if deployment.CompletedAt != nil {
		s := deployment.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &s
	}

	return map[string]any{
		"id":               deployment.ID,
		"project_id":       deployment.ProjectID,
		"provider":         string(deployment.Provider),
		"branch":           deployment.Branch,
		"commit_sha":       deployment.Commit,
		"status":           string(deployment.Status),
		"strategy":         deployment.Strategy,
		"attempt":          deployment.Attempt,
		"install_command":  deployment.BuildConfig.InstallCommand,
		"build_command":    deployment.BuildConfig.BuildCommand,
		"output_directory": deployment.BuildConfig.OutputDirectory,
		"start_command":    deployment.BuildConfig.StartCommand,
		"live_url":         deployment.LiveURL,
		"simulated":        deployment.Simulated,
		"cancel_requested": deployment.CancelRequested,
		"reason":           deployment.Reason,
		"log":              string(logJSON),
		"started_at":       deployment.StartedAt.Format(time.RFC3339Nano),
		"completed_at":     completedAt,
		"updated_at":       deployment.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func createDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	row, err := deploymentToRowMap(deployment)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (
			id, project_id, provider, branch, commit_sha, status, strategy, attempt,
			install_command, build_command, output_directory, start_command,
			live_url, simulated, cancel_requested, reason, log,
			started_at, completed_at, updated_at
		) VALUES (
			:id, :project_id, :provider, :branch, :commit_sha, :status, :strategy, :attempt,
			:install_command, :build_command, :output_directory, :start_command,
			:live_url, :simulated, :cancel_requested, :reason, :log,
			:started_at, :completed_at, :updated_at
		)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: deployments.id") {
			return NewStoreError("CreateDeployment", "deployment", deployment.ID, "deployment with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateDeployment", "deployment", deployment.ID, "project not found", ErrForeignKey)
		}
		return NewStoreError("CreateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	return nil
}

func getDeployment(ctx context.Context, exec executor, id string) (*domain.Deployment, error) {
	var row deploymentRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM deployments WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", id, err.Error(), err)
	}
	return rowToDeployment(&row)
}

func updateDeployment(ctx context.Context, exec executor, deployment *domain.Deployment) error {
	row, err := deploymentToRowMap(deployment)
	if err != nil {
		return err
	}

	query := `
		UPDATE deployments SET
			status = :status,
			strategy = :strategy,
			attempt = :attempt,
			commit_sha = :commit_sha,
			live_url = :live_url,
			simulated = :simulated,
			cancel_requested = :cancel_requested,
			reason = :reason,
			log = :log,
			completed_at = :completed_at,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, err.Error(), err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return NewStoreError("UpdateDeployment", "deployment", deployment.ID, "deployment not found", ErrNotFound)
	}
	return nil
}

func listDeployments(ctx context.Context, exec executor, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM deployments ORDER BY started_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "deployment", "", err.Error(), err)
	}
	return rowsToDeployments(rows)
}

func listDeploymentsByProject(ctx context.Context, exec executor, projectID string, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM deployments WHERE project_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		projectID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeploymentsByProject", "deployment", "", err.Error(), err)
	}
	return rowsToDeployments(rows)
}

func listDeploymentsByStatus(ctx context.Context, exec executor, status domain.DeploymentStatus, opts ListOptions) ([]domain.Deployment, error) {
	opts = opts.Normalize()

	var rows []deploymentRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM deployments WHERE status = ? ORDER BY started_at ASC LIMIT ? OFFSET ?`,
		string(status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListDeploymentsByStatus", "deployment", "", err.Error(), err)
	}
	return rowsToDeployments(rows)
}

func latestDeployedBefore(ctx context.Context, exec executor, projectID string, before time.Time) (*domain.Deployment, error) {
	var row deploymentRow
	err := exec.GetContext(ctx, &row, `
		SELECT * FROM deployments
		WHERE project_id = ? AND status = ? AND started_at < ?
		ORDER BY started_at DESC LIMIT 1`,
		projectID, string(domain.StatusDeployed), before.Format(time.RFC3339Nano))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestDeployedBefore", "deployment", projectID, "no prior deployed record", ErrNotFound)
		}
		return nil, NewStoreError("LatestDeployedBefore", "deployment", projectID, err.Error(), err)
	}
	return rowToDeployment(&row)
}

func rowsToDeployments(rows []deploymentRow) ([]domain.Deployment, error) {
	deployments := make([]domain.Deployment, 0, len(rows))
	for i := range rows {
		d, err := rowToDeployment(&rows[i])
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, nil
}

// rowToDeployment converts a database row to a domain.Deployment.
func rowToDeployment(row *deploymentRow) (*domain.Deployment, error) {
	startedAt, _ := time.Parse(time.RFC3339Nano, row.StartedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, row.UpdatedAt)

	var completedAt *time.Time
	if row.CompletedAt != nil && *row.CompletedAt != "" {
		t, _ := time.Parse(time.RFC3339Nano, *row.CompletedAt)
		completedAt = &t
	}

	var log []domain.LogEntry
	if row.Log != "" && row.Log != "null" {
		if err := json.Unmarshal([]byte(row.Log), &log); err != nil {
			return nil, NewStoreError("rowToDeployment", "deployment", row.ID, "failed to parse log", ErrInvalidData)
		}
	}

	return &domain.Deployment{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		Provider:  domain.ProviderType(row.Provider),
		Branch:    row.Branch,
		Commit:    row.CommitSHA,
		Status:    domain.DeploymentStatus(row.Status),
		Strategy:  row.Strategy,
		Attempt:   row.Attempt,
		BuildConfig: domain.BuildConfiguration{
			InstallCommand:  row.InstallCommand,
			BuildCommand:    row.BuildCommand,
			OutputDirectory: row.OutputDirectory,
			StartCommand:    row.StartCommand,
		},
		LiveURL:         row.LiveURL,
		Simulated:       row.Simulated,
		CancelRequested: row.CancelRequested,
		Reason:          row.Reason,
		Log:             log,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		UpdatedAt:       updatedAt,
	}, nil
}

// =============================================================================
// Credential Implementation
// =============================================================================

// credentialRow represents a credential row in the database. Only the
// encrypted envelope is stored, never plaintext secret material.
type credentialRow struct {
	ID        string  `db:"id"`
	OwnerID   string  `db:"owner_id"`
	Provider  string  `db:"provider"`
	Mode      string  `db:"mode"`
	Envelope  string  `db:"envelope"`
	Identity  string  `db:"identity"`
	ExpiresAt *string `db:"expires_at"`
	CreatedAt string  `db:"created_at"`
	RotatedAt *string `db:"rotated_at"`
}

func createCredential(ctx context.Context, exec executor, cred *domain.Credential) error {
	var expiresAt, rotatedAt *string
	if cred.ExpiresAt != nil {
		s := cred.ExpiresAt.Format(time.RFC3339)
		expiresAt = &s
	}
	if cred.RotatedAt != nil {
		s := cred.RotatedAt.Format(time.RFC3339)
		rotatedAt = &s
	}

	query := `
		INSERT INTO credentials (
			id, owner_id, provider, mode, envelope, identity, expires_at, created_at, rotated_at
		) VALUES (
			:id, :owner_id, :provider, :mode, :envelope, :identity, :expires_at, :created_at, :rotated_at
		)`

	row := map[string]any{
		"id":         cred.ID,
		"owner_id":   cred.OwnerID,
		"provider":   string(cred.Provider),
		"mode":       string(cred.Mode),
		"envelope":   cred.Envelope,
		"identity":   cred.Identity,
		"expires_at": expiresAt,
		"created_at": cred.CreatedAt.Format(time.RFC3339),
		"rotated_at": rotatedAt,
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateCredential", "credential", cred.ID, "credential already exists for this owner and provider", ErrDuplicateID)
		}
		return NewStoreError("CreateCredential", "credential", cred.ID, err.Error(), err)
	}
	return nil
}

func getCredential(ctx context.Context, exec executor, id string) (*domain.Credential, error) {
	var row credentialRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM credentials WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetCredential", "credential", id, "credential not found", ErrNotFound)
		}
		return nil, NewStoreError("GetCredential", "credential", id, err.Error(), err)
	}
	return rowToCredential(&row), nil
}

func getCredentialByOwnerProvider(ctx context.Context, exec executor, ownerID string, provider domain.ProviderType) (*domain.Credential, error) {
	var row credentialRow
	err := exec.GetContext(ctx, &row,
		`SELECT * FROM credentials WHERE owner_id = ? AND provider = ?`, ownerID, string(provider))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetCredentialByOwnerProvider", "credential", "", "credential not found", ErrNotFound)
		}
		return nil, NewStoreError("GetCredentialByOwnerProvider", "credential", "", err.Error(), err)
	}
	return rowToCredential(&row), nil
}

func updateCredential(ctx context.Context, exec executor, cred *domain.Credential) error {
	var expiresAt, rotatedAt *string
	if cred.ExpiresAt != nil {
		s := cred.ExpiresAt.Format(time.RFC3339)
		expiresAt = &s
	}
	if cred.RotatedAt != nil {
		s := cred.RotatedAt.Format(time.RFC3339)
		rotatedAt = &s
	}

	query := `
		UPDATE credentials SET
			mode = :mode,
			envelope = :envelope,
			identity = :identity,
			expires_at = :expires_at,
			rotated_at = :rotated_at
		WHERE id = :id`

	row := map[string]any{
		"id":         cred.ID,
		"mode":       string(cred.Mode),
		"envelope":   cred.Envelope,
		"identity":   cred.Identity,
		"expires_at": expiresAt,
		"rotated_at": rotatedAt,
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateCredential", "credential", cred.ID, err.Error(), err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return NewStoreError("UpdateCredential", "credential", cred.ID, "credential not found", ErrNotFound)
	}
	return nil
}

func deleteCredential(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteCredential", "credential", id, err.Error(), err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return NewStoreError("DeleteCredential", "credential", id, "credential not found", ErrNotFound)
	}
	return nil
}

func listCredentialsByOwner(ctx context.Context, exec executor, ownerID string, opts ListOptions) ([]domain.Credential, error) {
	opts = opts.Normalize()

	var rows []credentialRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM credentials WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListCredentialsByOwner", "credential", "", err.Error(), err)
	}

	creds := make([]domain.Credential, 0, len(rows))
	for i := range rows {
		creds = append(creds, *rowToCredential(&rows[i]))
	}
	return creds, nil
}

func listAllCredentials(ctx context.Context, exec executor) ([]domain.Credential, error) {
	var rows []credentialRow
	err := exec.SelectContext(ctx, &rows, `SELECT * FROM credentials ORDER BY created_at ASC`)
	if err != nil {
		return nil, NewStoreError("ListAllCredentials", "credential", "", err.Error(), err)
	}

	creds := make([]domain.Credential, 0, len(rows))
	for i := range rows {
		creds = append(creds, *rowToCredential(&rows[i]))
	}
	return creds, nil
}

func rowToCredential(row *credentialRow) *domain.Credential {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	var expiresAt, rotatedAt *time.Time
	if row.ExpiresAt != nil && *row.ExpiresAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.ExpiresAt)
		expiresAt = &t
	}
	if row.RotatedAt != nil && *row.RotatedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.RotatedAt)
		rotatedAt = &t
	}

	return &domain.Credential{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Provider:  domain.ProviderType(row.Provider),
		Mode:      domain.CredentialMode(row.Mode),
		Envelope:  row.Envelope,
		Identity:  row.Identity,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		RotatedAt: rotatedAt,
	}
}

// =============================================================================
// Analysis Cache Implementation
// =============================================================================

func getAnalysis(ctx context.Context, exec executor, repositoryURL, commit string) (*detect.Result, error) {
	var resultJSON string
	err := exec.GetContext(ctx, &resultJSON,
		`SELECT result FROM analyses WHERE repository_url = ? AND commit_sha = ?`, repositoryURL, commit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetAnalysis", "analysis", commit, "analysis not found", ErrNotFound)
		}
		return nil, NewStoreError("GetAnalysis", "analysis", commit, err.Error(), err)
	}

	var result detect.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, NewStoreError("GetAnalysis", "analysis", commit, "failed to parse result", ErrInvalidData)
	}
	return &result, nil
}

func putAnalysis(ctx context.Context, exec executor, repositoryURL, commit string, result *detect.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return NewStoreError("PutAnalysis", "analysis", commit, "failed to serialize result", ErrInvalidData)
	}

	query := `
		INSERT INTO analyses (repository_url, commit_sha, result, created_at)
		VALUES (:repository_url, :commit_sha, :result, :created_at)
		ON CONFLICT(repository_url, commit_sha) DO UPDATE SET result = :result`

	row := map[string]any{
		"repository_url": repositoryURL,
		"commit_sha":     commit,
		"result":         string(resultJSON),
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("PutAnalysis", "analysis", commit, err.Error(), err)
	}
	return nil
}
