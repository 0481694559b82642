// Package api provides HTTP handlers for the Launchpad API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/launchpad/internal/core/detect"
	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/core/validation"
	"github.com/artpar/launchpad/internal/shell/orchestrator"
	"github.com/artpar/launchpad/internal/shell/repo"
	"github.com/artpar/launchpad/internal/shell/store"
	"github.com/artpar/launchpad/internal/shell/vault"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Fetcher produces a local checkout of a remote repository. Satisfied by
// *repo.Fetcher; injectable so handler tests never touch the network.
type Fetcher interface {
	Fetch(ctx context.Context, url, branch string) (*repo.Checkout, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store        store.Store
	vault        *vault.Vault
	orchestrator *orchestrator.Orchestrator
	fetcher      Fetcher
	openapi      http.HandlerFunc
	logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, v *vault.Vault, o *orchestrator.Orchestrator, f Fetcher, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:        s,
		vault:        v,
		orchestrator: o,
		fetcher:      f,
		openapi:      newSpecGenerator().Handler(),
		logger:       l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.openapi)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Analysis routes
		r.Post("/analyses", h.handleAnalyze)

		// Project routes
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.handleCreateProject)
			r.Get("/", h.handleListProjects)
			r.Get("/{id}", h.handleGetProject)
			r.Delete("/{id}", h.handleDeleteProject)
			r.Get("/{id}/deployments", h.handleListProjectDeployments)
			r.Post("/{id}/rollback", h.handleRollback)
		})

		// Deployment routes
		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleCreateDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/{id}", h.handleGetDeployment)
			r.Post("/{id}/cancel", h.handleCancelDeployment)
		})

		// Credential routes
		r.Route("/credentials", func(r chi.Router) {
			r.Post("/", h.handleConnectCredential)
			r.Get("/", h.handleListCredentials)
			r.Delete("/{id}", h.handleDeleteCredential)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// ownerID identifies the caller. Single-tenant installs omit the header
// and share the "local" owner.
func ownerID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "local"
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if _, err := h.store.ListProjects(r.Context(), "local", store.ListOptions{Limit: 1}); err != nil {
		checks["database"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: checks,
		})
		return
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Analysis Handlers
// =============================================================================

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}

	if field, msg := validation.ValidateAnalysisFields(req.RepositoryURL, req.Branch); field != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}
	switch detect.CostTier(req.CostBias) {
	case "", detect.CostLow, detect.CostMedium, detect.CostHigh:
	default:
		h.writeError(w, http.StatusBadRequest, "cost_bias must be one of: low, medium, high", "validation_error")
		return
	}

	checkout, err := h.fetcher.Fetch(r.Context(), req.RepositoryURL, req.Branch)
	if err != nil {
		h.logger.Warn("repository fetch failed", "url", req.RepositoryURL, "error", err)
		h.writeError(w, http.StatusUnprocessableEntity, "failed to fetch repository", "fetch_error")
		return
	}
	defer checkout.Close()

	// Results are immutable per commit, so a cache hit skips the scan.
	if cached, err := h.store.GetAnalysis(r.Context(), req.RepositoryURL, checkout.Commit); err == nil {
		result := *cached
		applyCostBias(&result, req.CostBias)
		h.writeJSON(w, http.StatusOK, AnalysisResponse{
			RepositoryURL: req.RepositoryURL,
			Branch:        req.Branch,
			Commit:        checkout.Commit,
			Cached:        true,
			Result:        result,
		})
		return
	}

	bag, err := repo.Extract(r.Context(), checkout.Dir)
	if err != nil {
		h.logger.Error("signal extraction failed", "url", req.RepositoryURL, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to analyze repository", "internal_error")
		return
	}

	result := detect.Detect(bag)

	if err := h.store.PutAnalysis(r.Context(), req.RepositoryURL, checkout.Commit, &result); err != nil {
		// The result is still valid; a cache write failure only costs a re-scan.
		h.logger.Warn("failed to cache analysis", "url", req.RepositoryURL, "error", err)
	}

	applyCostBias(&result, req.CostBias)
	h.writeJSON(w, http.StatusOK, AnalysisResponse{
		RepositoryURL: req.RepositoryURL,
		Branch:        req.Branch,
		Commit:        checkout.Commit,
		Result:        result,
	})
}

// applyCostBias re-ranks the provider candidates under a request-scoped
// cost preference. The cache always holds the unbiased result.
func applyCostBias(result *detect.Result, bias string) {
	if bias == "" {
		return
	}
	needs := result.Needs
	needs.CostBias = detect.CostTier(bias)
	result.Providers = detect.RankProviders(result.Framework, needs)
}

// =============================================================================
// Project Handlers
// =============================================================================

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	owner := ownerID(r)
	if field, msg := validation.ValidateCreateProjectFields(req.Name, req.RepositoryURL, owner); field != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}

	project, err := domain.NewProject(owner, req.Name, req.RepositoryURL, req.DefaultBranch)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateProject(r.Context(), project); err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			h.writeError(w, http.StatusConflict, "project already exists", "conflict")
			return
		}
		h.logger.Error("failed to create project", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create project", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, projectToResponse(project))
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	opts := parseListOptions(r)

	projects, err := h.store.ListProjects(r.Context(), ownerID(r), opts)
	if err != nil {
		h.logger.Error("failed to list projects", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list projects", "internal_error")
		return
	}

	resp := ListProjectsResponse{
		Projects: make([]ProjectResponse, 0, len(projects)),
		Total:    len(projects),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for i := range projects {
		resp.Projects = append(resp.Projects, projectToResponse(&projects[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "not_found")
			return
		}
		h.logger.Error("failed to get project", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, projectToResponse(project))
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "not_found")
			return
		}
		if errors.Is(err, store.ErrForeignKey) {
			h.writeError(w, http.StatusConflict, "project has deployment records", "conflict")
			return
		}
		h.logger.Error("failed to delete project", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete project", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListProjectDeployments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opts := parseListOptions(r)

	if _, err := h.store.GetProject(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "not_found")
			return
		}
		h.logger.Error("failed to get project", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		return
	}

	deployments, err := h.store.ListDeploymentsByProject(r.Context(), id, opts)
	if err != nil {
		h.logger.Error("failed to list deployments", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, deploymentsToListResponse(deployments, opts))
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetProject(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "not_found")
			return
		}
		h.logger.Error("failed to get project", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		return
	}

	deployment, err := h.orchestrator.Rollback(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNoPriorDeployment) {
			h.writeError(w, http.StatusUnprocessableEntity, "no prior deployed record to roll back to", "no_prior_deployment")
			return
		}
		h.logger.Error("rollback failed", "project_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "rollback failed", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, deploymentToResponse(deployment))
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req CreateDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if field, msg := validation.ValidateCreateDeploymentFields(req.ProjectID, req.Provider, req.Branch); field != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}

	provider := domain.ProviderType(req.Provider)
	if !provider.IsValid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidProviderType.Error(), "validation_error")
		return
	}

	if _, err := h.store.GetProject(r.Context(), req.ProjectID); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "project not found", "not_found")
			return
		}
		h.logger.Error("failed to get project", "project_id", req.ProjectID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		return
	}

	deployment, err := domain.NewDeployment(req.ProjectID, provider, req.Branch, req.Commit, req.BuildConfig)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateDeployment(r.Context(), deployment); err != nil {
		h.logger.Error("failed to create deployment", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create deployment", "internal_error")
		return
	}

	if err := h.orchestrator.Launch(deployment.ID); err != nil {
		if errors.Is(err, orchestrator.ErrRunInFlight) {
			h.writeError(w, http.StatusConflict, "deployment run already in flight", "conflict")
			return
		}
		h.logger.Error("failed to launch deployment", "deployment_id", deployment.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to launch deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, deploymentToResponse(deployment))
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	opts := parseListOptions(r)

	var (
		deployments []domain.Deployment
		err         error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		deployments, err = h.store.ListDeploymentsByStatus(r.Context(), domain.DeploymentStatus(status), opts)
	} else {
		deployments, err = h.store.ListDeployments(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, deploymentsToListResponse(deployments, opts))
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deployment, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		h.logger.Error("failed to get deployment", "deployment_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, deploymentToResponse(deployment))
}

func (h *Handler) handleCancelDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.orchestrator.Cancel(r.Context(), id); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "not_found")
			return
		}
		if errors.Is(err, domain.ErrTerminalDeployment) {
			h.writeError(w, http.StatusConflict, "deployment already finished", "conflict")
			return
		}
		h.logger.Error("failed to cancel deployment", "deployment_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel deployment", "internal_error")
		return
	}

	deployment, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get deployment", "deployment_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, deploymentToResponse(deployment))
}

// =============================================================================
// Credential Handlers
// =============================================================================

func (h *Handler) handleConnectCredential(w http.ResponseWriter, r *http.Request) {
	var req ConnectCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if field, msg := validation.ValidateConnectCredentialFields(req.Provider, string(req.Secret), req.Demo); field != "" {
		h.writeError(w, http.StatusBadRequest, msg, "validation_error")
		return
	}

	provider := domain.ProviderType(req.Provider)
	if !provider.IsValid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidProviderType.Error(), "validation_error")
		return
	}

	cred, err := h.vault.Connect(r.Context(), ownerID(r), provider, req.Secret, req.Demo)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidSecret):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_secret")
		case errors.Is(err, vault.ErrCredentialRejected):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "credential_rejected")
		case errors.Is(err, store.ErrDuplicateID):
			h.writeError(w, http.StatusConflict, "a credential for this provider is already connected", "conflict")
		default:
			h.logger.Error("failed to connect credential", "provider", provider, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to connect credential", "internal_error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, credentialToResponse(cred))
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.ListCredentialsByOwner(r.Context(), ownerID(r), parseListOptions(r))
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list credentials", "internal_error")
		return
	}

	resp := ListCredentialsResponse{
		Credentials: make([]CredentialResponse, 0, len(creds)),
		Total:       len(creds),
	}
	for i := range creds {
		resp.Credentials = append(resp.Credentials, credentialToResponse(&creds[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cred, err := h.store.GetCredential(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "credential not found", "not_found")
			return
		}
		h.logger.Error("failed to get credential", "credential_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get credential", "internal_error")
		return
	}

	// Callers only see their own credentials.
	if cred.OwnerID != ownerID(r) {
		h.writeError(w, http.StatusNotFound, "credential not found", "not_found")
		return
	}

	if err := h.store.DeleteCredential(r.Context(), id); err != nil {
		h.logger.Error("failed to delete credential", "credential_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete credential", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

func parseListOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	return opts.Normalize()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func projectToResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		RepositoryURL: p.RepositoryURL,
		DefaultBranch: p.DefaultBranch,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func deploymentToResponse(d *domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Provider:    string(d.Provider),
		Branch:      d.Branch,
		Commit:      d.Commit,
		Status:      string(d.Status),
		Strategy:    d.Strategy,
		Attempt:     d.Attempt,
		BuildConfig: d.BuildConfig,
		LiveURL:     d.LiveURL,
		Simulated:   d.Simulated,
		Reason:      d.Reason,
		Log:         make([]LogEntryResponse, 0, len(d.Log)),
		StartedAt:   d.StartedAt,
		CompletedAt: d.CompletedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for _, e := range d.Log {
		resp.Log = append(resp.Log, LogEntryResponse{
			Timestamp: e.Timestamp,
			Level:     string(e.Level),
			Message:   e.Message,
		})
	}
	return resp
}

func deploymentsToListResponse(deployments []domain.Deployment, opts store.ListOptions) ListDeploymentsResponse {
	resp := ListDeploymentsResponse{
		Deployments: make([]DeploymentResponse, 0, len(deployments)),
		Total:       len(deployments),
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	}
	for i := range deployments {
		resp.Deployments = append(resp.Deployments, deploymentToResponse(&deployments[i]))
	}
	return resp
}

func credentialToResponse(c *domain.Credential) CredentialResponse {
	return CredentialResponse{
		ID:        c.ID,
		Provider:  string(c.Provider),
		Mode:      string(c.Mode),
		Identity:  c.Identity,
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
		RotatedAt: c.RotatedAt,
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		return errors.Is(storeErr.Unwrap(), store.ErrNotFound)
	}
	return false
}
