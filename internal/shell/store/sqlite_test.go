package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/launchpad/internal/core/detect"
	"github.com/artpar/launchpad/internal/core/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testProject(t *testing.T, ownerID string) *domain.Project {
	t.Helper()
	p, err := domain.NewProject(ownerID, "demo-app", "https://github.com/acme/demo-app", "main")
	require.NoError(t, err)
	return p
}

func testDeployment(t *testing.T, projectID string) *domain.Deployment {
	t.Helper()
	d, err := domain.NewDeployment(projectID, domain.ProviderDigitalOcean, "main", "abc1234", domain.BuildConfiguration{
		InstallCommand: "npm install",
		BuildCommand:   "npm run build",
		StartCommand:   "npm start",
	})
	require.NoError(t, err)
	return d
}

// =============================================================================
// Project Tests
// =============================================================================

func TestSQLiteStore_CreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, "demo-app", got.Name)
	assert.Equal(t, "main", got.DefaultBranch)
}

func TestSQLiteStore_CreateProject_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	err := s.CreateProject(ctx, project)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestSQLiteStore_GetProject_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), "prj_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_DeleteProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))
	require.NoError(t, s.DeleteProject(ctx, project.ID))

	_, err := s.GetProject(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_DeleteProject_WithDeployments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))
	require.NoError(t, s.CreateDeployment(ctx, testDeployment(t, project.ID)))

	err := s.DeleteProject(ctx, project.ID)
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestSQLiteStore_ListProjects_FiltersByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, testProject(t, "user-1")))
	require.NoError(t, s.CreateProject(ctx, testProject(t, "user-1")))
	require.NoError(t, s.CreateProject(ctx, testProject(t, "user-2")))

	projects, err := s.ListProjects(ctx, "user-1", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	all, err := s.ListProjects(ctx, "", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// Deployment Tests
// =============================================================================

func TestSQLiteStore_CreateAndGetDeployment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	deployment := testDeployment(t, project.ID)
	deployment.AppendLog(domain.LogInfo, "queued for deployment")
	require.NoError(t, s.CreateDeployment(ctx, deployment))

	got, err := s.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.ID, got.ID)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, "npm install", got.BuildConfig.InstallCommand)
	require.Len(t, got.Log, 1)
	assert.Equal(t, "queued for deployment", got.Log[0].Message)
}

func TestSQLiteStore_CreateDeployment_MissingProject(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateDeployment(context.Background(), testDeployment(t, "prj_missing"))
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestSQLiteStore_UpdateDeployment_PersistsTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	deployment := testDeployment(t, project.ID)
	require.NoError(t, s.CreateDeployment(ctx, deployment))

	require.NoError(t, deployment.Transition(domain.StatusValidatingCredential))
	require.NoError(t, deployment.Transition(domain.StatusAttempting))
	deployment.Strategy = "app-git-link"
	deployment.Attempt = 1
	require.NoError(t, deployment.Transition(domain.StatusDeployed))
	deployment.LiveURL = "https://demo-app.example.app"
	deployment.AppendLog(domain.LogSuccess, "deployment live")
	require.NoError(t, s.UpdateDeployment(ctx, deployment))

	got, err := s.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeployed, got.Status)
	assert.Equal(t, "app-git-link", got.Strategy)
	assert.Equal(t, 1, got.Attempt)
	assert.Equal(t, "https://demo-app.example.app", got.LiveURL)
	require.NotNil(t, got.CompletedAt)
}

func TestSQLiteStore_UpdateDeployment_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateDeployment(context.Background(), testDeployment(t, "prj_x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListDeploymentsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	queued := testDeployment(t, project.ID)
	require.NoError(t, s.CreateDeployment(ctx, queued))

	failed := testDeployment(t, project.ID)
	failed.Status = domain.StatusFailed
	require.NoError(t, s.CreateDeployment(ctx, failed))

	got, err := s.ListDeploymentsByStatus(ctx, domain.StatusQueued, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, queued.ID, got[0].ID)
}

func TestSQLiteStore_LatestDeployedBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	deploy := func(started time.Time, status domain.DeploymentStatus, commit string) *domain.Deployment {
		d := testDeployment(t, project.ID)
		d.Commit = commit
		d.StartedAt = started
		d.Status = status
		require.NoError(t, s.CreateDeployment(ctx, d))
		return d
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deploy(base, domain.StatusDeployed, "aaa1111")
	second := deploy(base.Add(time.Hour), domain.StatusDeployed, "bbb2222")
	deploy(base.Add(2*time.Hour), domain.StatusFailed, "ccc3333")
	current := deploy(base.Add(3*time.Hour), domain.StatusDeployed, "ddd4444")

	prior, err := s.LatestDeployedBefore(ctx, project.ID, current.StartedAt)
	require.NoError(t, err)
	assert.Equal(t, second.ID, prior.ID)
	assert.Equal(t, "bbb2222", prior.Commit)
}

func TestSQLiteStore_LatestDeployedBefore_NonePrior(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	require.NoError(t, s.CreateProject(ctx, project))

	_, err := s.LatestDeployedBefore(ctx, project.ID, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Credential Tests
// =============================================================================

func TestSQLiteStore_CredentialLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred, err := domain.NewCredential("user-1", domain.ProviderDigitalOcean, "envelope-data", domain.ModeReal)
	require.NoError(t, err)
	require.NoError(t, s.CreateCredential(ctx, cred))

	got, err := s.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "envelope-data", got.Envelope)
	assert.Equal(t, domain.ModeReal, got.Mode)
	assert.Nil(t, got.RotatedAt)

	now := time.Now().UTC().Truncate(time.Second)
	got.Envelope = "rotated-envelope"
	got.RotatedAt = &now
	require.NoError(t, s.UpdateCredential(ctx, got))

	byOwner, err := s.GetCredentialByOwnerProvider(ctx, "user-1", domain.ProviderDigitalOcean)
	require.NoError(t, err)
	assert.Equal(t, "rotated-envelope", byOwner.Envelope)
	require.NotNil(t, byOwner.RotatedAt)
	assert.True(t, byOwner.RotatedAt.Equal(now))

	require.NoError(t, s.DeleteCredential(ctx, cred.ID))
	_, err = s.GetCredential(ctx, cred.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateCredential_DuplicateOwnerProvider(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := domain.NewCredential("user-1", domain.ProviderHetzner, "env-1", domain.ModeReal)
	require.NoError(t, err)
	require.NoError(t, s.CreateCredential(ctx, first))

	second, err := domain.NewCredential("user-1", domain.ProviderHetzner, "env-2", domain.ModeReal)
	require.NoError(t, err)
	err = s.CreateCredential(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateID)

	// Same provider for a different owner is fine.
	other, err := domain.NewCredential("user-2", domain.ProviderHetzner, "env-3", domain.ModeReal)
	require.NoError(t, err)
	assert.NoError(t, s.CreateCredential(ctx, other))
}

func TestSQLiteStore_ListCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, provider := range []domain.ProviderType{domain.ProviderDigitalOcean, domain.ProviderAWS} {
		cred, err := domain.NewCredential("user-1", provider, "env", domain.ModeDemo)
		require.NoError(t, err)
		require.NoError(t, s.CreateCredential(ctx, cred))
	}
	cred, err := domain.NewCredential("user-2", domain.ProviderHetzner, "env", domain.ModeReal)
	require.NoError(t, err)
	require.NoError(t, s.CreateCredential(ctx, cred))

	mine, err := s.ListCredentialsByOwner(ctx, "user-1", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := s.ListAllCredentials(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// Analysis Cache Tests
// =============================================================================

func TestSQLiteStore_AnalysisCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := &detect.Result{
		Framework:  "Next.js",
		Confidence: 0.95,
		RuleID:     "nextjs",
		Build: domain.BuildConfiguration{
			InstallCommand: "npm install",
			BuildCommand:   "npm run build",
			StartCommand:   "npm start",
		},
	}

	_, err := s.GetAnalysis(ctx, "https://github.com/acme/demo", "abc1234")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutAnalysis(ctx, "https://github.com/acme/demo", "abc1234", result))

	got, err := s.GetAnalysis(ctx, "https://github.com/acme/demo", "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "Next.js", got.Framework)
	assert.Equal(t, 0.95, got.Confidence)

	// Upsert on same key replaces the cached result.
	result.Confidence = 1.0
	require.NoError(t, s.PutAnalysis(ctx, "https://github.com/acme/demo", "abc1234", result))
	got, err = s.GetAnalysis(ctx, "https://github.com/acme/demo", "abc1234")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestSQLiteStore_WithTx_Commit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	err := s.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		return tx.CreateDeployment(ctx, testDeployment(t, project.ID))
	})
	require.NoError(t, err)

	deployments, err := s.ListDeploymentsByProject(ctx, project.ID, DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, deployments, 1)
}

func TestSQLiteStore_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	project := testProject(t, "user-1")
	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = s.GetProject(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
