package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/shell/orchestrator"
	"github.com/artpar/launchpad/internal/shell/repo"
	"github.com/artpar/launchpad/internal/shell/store"
	"github.com/artpar/launchpad/internal/shell/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testMasterSecret = []byte("0123456789abcdef0123456789abcdef")

// stubFetcher serves a fixed local directory instead of cloning.
type stubFetcher struct {
	dir    string
	commit string
	err    error
}

func (f *stubFetcher) Fetch(ctx context.Context, url, branch string) (*repo.Checkout, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &repo.Checkout{Dir: f.dir, Commit: f.commit}, nil
}

type testEnv struct {
	handler      *Handler
	router       http.Handler
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	fetcher      *stubFetcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	v := vault.NewVault(s, testMasterSecret, logger)
	o := orchestrator.New(s, v, orchestrator.Config{
		StrategyTimeout:    time.Second,
		RetryBackoff:       time.Millisecond,
		SimulatedStepDelay: time.Millisecond,
	}, logger)

	fetcher := &stubFetcher{commit: "abc1234def"}
	h := NewHandler(s, v, o, fetcher, logger)

	return &testEnv{
		handler:      h,
		router:       h.Routes(),
		store:        s,
		orchestrator: o,
		fetcher:      fetcher,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, "", method, path, body)
}

func (e *testEnv) doAs(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// nextjsFixture writes a minimal Next.js repository layout.
func nextjsFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := `{
  "dependencies": {"next": "14.0.0", "react": "18.2.0"},
  "scripts": {"build": "next build", "start": "next start"}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0o644))
	return dir
}

func (e *testEnv) createProject(t *testing.T, user string) ProjectResponse {
	t.Helper()
	rec := e.doAs(t, user, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
		Name:          "demo-app",
		RepositoryURL: "https://github.com/acme/demo-app",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[ProjectResponse](t, rec)
}

func (e *testEnv) connectDemoCredential(t *testing.T, user, provider string) CredentialResponse {
	t.Helper()
	rec := e.doAs(t, user, http.MethodPost, "/api/v1/credentials", ConnectCredentialRequest{
		Provider: provider,
		Demo:     true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[CredentialResponse](t, rec)
}

// deployedRecord inserts a terminal deployed record directly.
func (e *testEnv) deployedRecord(t *testing.T, projectID, commit, liveURL string, startedAt time.Time) *domain.Deployment {
	t.Helper()
	d, err := domain.NewDeployment(projectID, domain.ProviderDigitalOcean, "main", commit, domain.BuildConfiguration{})
	require.NoError(t, err)
	require.NoError(t, d.Transition(domain.StatusValidatingCredential))
	require.NoError(t, d.Transition(domain.StatusAttempting))
	require.NoError(t, d.Transition(domain.StatusDeployed))
	d.LiveURL = liveURL
	d.StartedAt = startedAt
	require.NoError(t, e.store.CreateDeployment(context.Background(), d))
	return d
}

// =============================================================================
// Health
// =============================================================================

func TestHandler_Health(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
}

func TestHandler_Ready(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ReadyResponse](t, rec)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestHandler_OpenAPISpec(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var spec map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&spec))
	assert.Equal(t, "3.0.3", spec["openapi"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/projects")
	assert.Contains(t, paths, "/api/v1/deployments/{id}/cancel")
	assert.Contains(t, paths, "/api/v1/analyses")
}

// =============================================================================
// Analyses
// =============================================================================

func TestHandler_Analyze(t *testing.T) {
	e := newTestEnv(t)
	e.fetcher.dir = nextjsFixture(t)

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{
		RepositoryURL: "https://github.com/acme/demo-app",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AnalysisResponse](t, rec)
	assert.Equal(t, "Next.js", resp.Result.Framework)
	assert.Equal(t, "abc1234def", resp.Commit)
	assert.Equal(t, "main", resp.Branch)
	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.Result.Providers)
}

func TestHandler_Analyze_CachedByCommit(t *testing.T) {
	e := newTestEnv(t)
	e.fetcher.dir = nextjsFixture(t)

	req := AnalyzeRequest{RepositoryURL: "https://github.com/acme/demo-app"}

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[AnalysisResponse](t, rec).Cached)

	rec = e.do(t, http.MethodPost, "/api/v1/analyses", req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AnalysisResponse](t, rec)
	assert.True(t, resp.Cached)
	assert.Equal(t, "Next.js", resp.Result.Framework)
}

func TestHandler_Analyze_CostBiasReranks(t *testing.T) {
	e := newTestEnv(t)
	e.fetcher.dir = nextjsFixture(t)

	req := AnalyzeRequest{RepositoryURL: "https://github.com/acme/demo-app"}

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", req)
	require.Equal(t, http.StatusOK, rec.Code)
	unbiased := decode[AnalysisResponse](t, rec)

	req.CostBias = "high"
	rec = e.do(t, http.MethodPost, "/api/v1/analyses", req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The cached result is reused but the ranking reflects the bias.
	biased := decode[AnalysisResponse](t, rec)
	assert.True(t, biased.Cached)
	assert.Equal(t, unbiased.Result.Framework, biased.Result.Framework)
	assert.NotEqual(t, unbiased.Result.Providers, biased.Result.Providers)
}

func TestHandler_Analyze_InvalidCostBias(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{
		RepositoryURL: "https://github.com/acme/demo-app",
		CostBias:      "free",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_Analyze_MissingURL(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Branch: "main"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_Analyze_FetchFailure(t *testing.T) {
	e := newTestEnv(t)
	e.fetcher.err = errors.New("remote unreachable")

	rec := e.do(t, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{
		RepositoryURL: "https://github.com/acme/gone",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "fetch_error", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Projects
// =============================================================================

func TestHandler_CreateAndGetProject(t *testing.T) {
	e := newTestEnv(t)

	project := e.createProject(t, "")
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "demo-app", project.Name)
	assert.Equal(t, "main", project.DefaultBranch)

	rec := e.do(t, http.MethodGet, "/api/v1/projects/"+project.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, project.ID, decode[ProjectResponse](t, rec).ID)
}

func TestHandler_CreateProject_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Name: "no-repo"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
		RepositoryURL: "https://github.com/acme/demo-app",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetProject_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/projects/prj_missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_ListProjects_ScopedToOwner(t *testing.T) {
	e := newTestEnv(t)

	e.createProject(t, "alice")
	e.createProject(t, "bob")

	rec := e.doAs(t, "alice", http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ListProjectsResponse](t, rec)
	assert.Equal(t, 1, resp.Total)
}

func TestHandler_DeleteProject(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")

	rec := e.do(t, http.MethodDelete, "/api/v1/projects/"+project.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/projects/"+project.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_DeleteProject_WithDeployments(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")
	e.deployedRecord(t, project.ID, "c1", "https://app.example.com", time.Now().UTC())

	rec := e.do(t, http.MethodDelete, "/api/v1/projects/"+project.ID, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// Deployments
// =============================================================================

func TestHandler_CreateDeployment_DemoFlow(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")
	e.connectDemoCredential(t, "", "digitalocean")

	rec := e.do(t, http.MethodPost, "/api/v1/deployments", CreateDeploymentRequest{
		ProjectID: project.ID,
		Provider:  "digitalocean",
		Branch:    "main",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	created := decode[DeploymentResponse](t, rec)
	assert.Equal(t, string(domain.StatusQueued), created.Status)

	e.orchestrator.Wait()

	rec = e.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	final := decode[DeploymentResponse](t, rec)
	assert.Equal(t, string(domain.StatusDeployed), final.Status)
	assert.True(t, final.Simulated)
	assert.NotEmpty(t, final.LiveURL)
	assert.NotEmpty(t, final.Log)
}

func TestHandler_CreateDeployment_UnknownProject(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/deployments", CreateDeploymentRequest{
		ProjectID: "prj_missing",
		Provider:  "digitalocean",
		Branch:    "main",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateDeployment_UnknownProvider(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")

	rec := e.do(t, http.MethodPost, "/api/v1/deployments", CreateDeploymentRequest{
		ProjectID: project.ID,
		Provider:  "vercel",
		Branch:    "main",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListDeployments_FilterByStatus(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")
	e.deployedRecord(t, project.ID, "c1", "https://app.example.com", time.Now().UTC())

	rec := e.do(t, http.MethodGet, "/api/v1/deployments?status=deployed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListDeploymentsResponse](t, rec).Total)

	rec = e.do(t, http.MethodGet, "/api/v1/deployments?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListDeploymentsResponse](t, rec).Total)
}

func TestHandler_ListProjectDeployments(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")
	e.deployedRecord(t, project.ID, "c1", "https://app.example.com", time.Now().UTC())

	rec := e.do(t, http.MethodGet, "/api/v1/projects/"+project.ID+"/deployments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListDeploymentsResponse](t, rec).Total)

	rec = e.do(t, http.MethodGet, "/api/v1/projects/prj_missing/deployments", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CancelDeployment_Terminal(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")
	d := e.deployedRecord(t, project.ID, "c1", "https://app.example.com", time.Now().UTC())

	rec := e.do(t, http.MethodPost, "/api/v1/deployments/"+d.ID+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_CancelDeployment_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/deployments/dep_missing/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Rollback
// =============================================================================

func TestHandler_Rollback(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")

	now := time.Now().UTC()
	prior := e.deployedRecord(t, project.ID, "commit-old", "https://old.example.com", now.Add(-2*time.Hour))
	e.deployedRecord(t, project.ID, "commit-new", "https://new.example.com", now.Add(-time.Hour))

	rec := e.do(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/rollback", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[DeploymentResponse](t, rec)
	assert.Equal(t, string(domain.StatusDeployed), resp.Status)
	assert.Equal(t, "rollback", resp.Strategy)
	assert.Equal(t, prior.Commit, resp.Commit)
	assert.Equal(t, prior.LiveURL, resp.LiveURL)
}

func TestHandler_Rollback_NoPriorDeployment(t *testing.T) {
	e := newTestEnv(t)
	project := e.createProject(t, "")

	// Only one deployed record exists, so there is nothing to return to.
	e.deployedRecord(t, project.ID, "c1", "https://app.example.com", time.Now().UTC())

	rec := e.do(t, http.MethodPost, "/api/v1/projects/"+project.ID+"/rollback", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "no_prior_deployment", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_Rollback_UnknownProject(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/projects/prj_missing/rollback", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Credentials
// =============================================================================

func TestHandler_ConnectCredential_Demo(t *testing.T) {
	e := newTestEnv(t)

	cred := e.connectDemoCredential(t, "", "hetzner")
	assert.Equal(t, "hetzner", cred.Provider)
	assert.Equal(t, string(domain.ModeDemo), cred.Mode)
	assert.Equal(t, "demo account", cred.Identity)
}

func TestHandler_ConnectCredential_SecretNeverReturned(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/credentials", ConnectCredentialRequest{
		Provider: "digitalocean",
		Secret:   json.RawMessage(`{"api_token":"dop_v1_topsecret"}`),
		Demo:     true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dop_v1_topsecret")
	assert.NotContains(t, rec.Body.String(), "envelope")
}

func TestHandler_ConnectCredential_MissingSecret(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/credentials", ConnectCredentialRequest{
		Provider: "digitalocean",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_ConnectCredential_InvalidShape(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/credentials", ConnectCredentialRequest{
		Provider: "digitalocean",
		Secret:   json.RawMessage(`{}`),
		Demo:     true,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_secret", decode[ErrorResponse](t, rec).Code)
}

func TestHandler_ConnectCredential_Duplicate(t *testing.T) {
	e := newTestEnv(t)
	e.connectDemoCredential(t, "", "digitalocean")

	rec := e.do(t, http.MethodPost, "/api/v1/credentials", ConnectCredentialRequest{
		Provider: "digitalocean",
		Demo:     true,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ListCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.connectDemoCredential(t, "alice", "digitalocean")
	e.connectDemoCredential(t, "alice", "hetzner")
	e.connectDemoCredential(t, "bob", "aws")

	rec := e.doAs(t, "alice", http.MethodGet, "/api/v1/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[ListCredentialsResponse](t, rec).Total)
}

func TestHandler_DeleteCredential(t *testing.T) {
	e := newTestEnv(t)
	cred := e.connectDemoCredential(t, "alice", "digitalocean")

	// Another owner cannot see it, let alone delete it.
	rec := e.doAs(t, "bob", http.MethodDelete, "/api/v1/credentials/"+cred.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.doAs(t, "alice", http.MethodDelete, "/api/v1/credentials/"+cred.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.doAs(t, "alice", http.MethodGet, "/api/v1/credentials", nil)
	assert.Equal(t, 0, decode[ListCredentialsResponse](t, rec).Total)
}
