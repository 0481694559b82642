// Package vault manages encrypted provider credentials. Secrets are
// sealed at rest and decrypted only for the duration of a single
// validation or deployment attempt.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/launchpad/internal/core/crypto"
	"github.com/artpar/launchpad/internal/core/domain"
	coreprovider "github.com/artpar/launchpad/internal/core/provider"
	"github.com/artpar/launchpad/internal/shell/provider"
	"github.com/artpar/launchpad/internal/shell/store"
)

var (
	ErrInvalidSecret      = errors.New("invalid credential secret")
	ErrCredentialRejected = errors.New("credential rejected by provider")
)

// adapterFactory builds a provider adapter from decrypted credential JSON.
// Injectable so tests can avoid live API calls.
type adapterFactory func(domain.ProviderType, []byte, *slog.Logger) (provider.Adapter, error)

// Vault seals and opens provider credentials.
type Vault struct {
	store        store.Store
	masterSecret []byte
	newAdapter   adapterFactory
	logger       *slog.Logger
}

// NewVault creates a credential vault backed by the given store.
func NewVault(s store.Store, masterSecret []byte, logger *slog.Logger) *Vault {
	return &Vault{
		store:        s,
		masterSecret: masterSecret,
		newAdapter:   provider.NewAdapter,
		logger:       logger.With("component", "vault"),
	}
}

// Connect validates and stores a new provider credential. In demo mode
// the secret is sealed without touching the provider API; otherwise the
// credential is verified live before being persisted.
func (v *Vault) Connect(ctx context.Context, ownerID string, providerType domain.ProviderType, secretJSON []byte, demo bool) (*domain.Credential, error) {
	if demo && len(secretJSON) == 0 {
		// Demo credentials need no real secret; seal a marker so the
		// envelope machinery stays uniform.
		secretJSON = []byte(`{"demo":true}`)
	} else if err := coreprovider.ValidateCredentialsJSON(string(providerType), secretJSON); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSecret, err)
	}

	mode := domain.ModeReal
	identity := ""
	if demo {
		mode = domain.ModeDemo
		identity = "demo account"
	} else {
		adapter, err := v.newAdapter(providerType, secretJSON, v.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSecret, err)
		}
		identity, err = adapter.ValidateCredential(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCredentialRejected, err)
		}
	}

	envelope, err := crypto.SealToBase64(secretJSON, ownerID, v.masterSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential: %w", err)
	}

	cred, err := domain.NewCredential(ownerID, providerType, envelope, mode)
	if err != nil {
		return nil, err
	}
	cred.Identity = identity

	if err := v.store.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}

	v.logger.Info("credential connected",
		"credential_id", cred.ID,
		"provider", providerType,
		"mode", mode)
	return cred, nil
}

// Open decrypts a credential's secret. The returned plaintext is valid
// for a single attempt and must not be cached by the caller.
func (v *Vault) Open(cred *domain.Credential) ([]byte, error) {
	return crypto.OpenFromBase64(cred.Envelope, cred.OwnerID, v.masterSecret)
}

// AdapterFor decrypts a credential and builds a provider adapter from
// it in one step, so plaintext never escapes the call site.
func (v *Vault) AdapterFor(cred *domain.Credential) (provider.Adapter, error) {
	secretJSON, err := v.Open(cred)
	if err != nil {
		return nil, err
	}
	return v.newAdapter(cred.Provider, secretJSON, v.logger)
}

// RotationResult reports the outcome of re-sealing one credential.
type RotationResult struct {
	CredentialID string
	Err          error
}

// RotateAll re-validates and re-seals every stored credential under a
// fresh salt and nonce. Failures are per-item; one bad envelope never
// blocks the rest.
func (v *Vault) RotateAll(ctx context.Context) ([]RotationResult, error) {
	creds, err := v.store.ListAllCredentials(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RotationResult, 0, len(creds))
	for i := range creds {
		cred := &creds[i]
		results = append(results, RotationResult{
			CredentialID: cred.ID,
			Err:          v.rotate(ctx, cred),
		})
	}
	return results, nil
}

func (v *Vault) rotate(ctx context.Context, cred *domain.Credential) error {
	secretJSON, err := v.Open(cred)
	if err != nil {
		return fmt.Errorf("failed to open envelope: %w", err)
	}

	// Real credentials are checked against the live API before the
	// envelope is replaced, so rotation never re-seals a revoked secret.
	if !cred.IsDemo() {
		adapter, err := v.newAdapter(cred.Provider, secretJSON, v.logger)
		if err != nil {
			return err
		}
		if _, err := adapter.ValidateCredential(ctx); err != nil {
			return fmt.Errorf("%w: %s", ErrCredentialRejected, err)
		}
	}

	envelope, err := crypto.SealToBase64(secretJSON, cred.OwnerID, v.masterSecret)
	if err != nil {
		return fmt.Errorf("failed to re-seal envelope: %w", err)
	}

	now := time.Now().UTC()
	cred.Envelope = envelope
	cred.RotatedAt = &now
	if err := v.store.UpdateCredential(ctx, cred); err != nil {
		return err
	}

	v.logger.Info("credential rotated", "credential_id", cred.ID)
	return nil
}
