package vault

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/launchpad/internal/core/crypto"
	"github.com/artpar/launchpad/internal/core/domain"
	"github.com/artpar/launchpad/internal/shell/provider"
	"github.com/artpar/launchpad/internal/shell/store"
)

var testMasterSecret = []byte("test-master-secret-32-bytes-long")

// stubAdapter fakes provider credential validation.
type stubAdapter struct {
	providerType domain.ProviderType
	identity     string
	validateErr  error
}

func (s *stubAdapter) Type() domain.ProviderType { return s.providerType }

func (s *stubAdapter) ValidateCredential(ctx context.Context) (string, error) {
	return s.identity, s.validateErr
}

func (s *stubAdapter) Strategies() []provider.Strategy {
	return []provider.Strategy{{Name: "stub"}}
}

func (s *stubAdapter) Deploy(ctx context.Context, strategy string, req provider.DeployRequest) (*provider.DeployResult, error) {
	return nil, errors.New("not implemented")
}

func newTestVault(t *testing.T, stub *stubAdapter) (*Vault, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	v := NewVault(s, testMasterSecret, slog.Default())
	if stub != nil {
		v.newAdapter = func(pt domain.ProviderType, credJSON []byte, _ *slog.Logger) (provider.Adapter, error) {
			stub.providerType = pt
			return stub, nil
		}
	}
	return v, s
}

func TestVault_Connect_DemoMode(t *testing.T) {
	v, s := newTestVault(t, nil)
	ctx := context.Background()

	cred, err := v.Connect(ctx, "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"dop_v1_abc"}`), true)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, cred.Mode)
	assert.True(t, cred.IsDemo())
	assert.Equal(t, "demo account", cred.Identity)

	// The stored envelope is sealed, not plaintext.
	stored, err := s.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Envelope, "dop_v1_abc")
}

func TestVault_Connect_DemoWithoutSecret(t *testing.T) {
	v, _ := newTestVault(t, nil)

	cred, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, nil, true)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDemo, cred.Mode)

	// A placeholder is sealed so the envelope still opens.
	opened, err := v.Open(cred)
	require.NoError(t, err)
	assert.JSONEq(t, `{"demo":true}`, string(opened))
}

func TestVault_Connect_RealModeValidatesLive(t *testing.T) {
	stub := &stubAdapter{identity: "dev@acme.io"}
	v, _ := newTestVault(t, stub)

	cred, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"dop_v1_abc"}`), false)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeReal, cred.Mode)
	assert.Equal(t, "dev@acme.io", cred.Identity)
}

func TestVault_Connect_RejectedByProvider(t *testing.T) {
	stub := &stubAdapter{validateErr: provider.NewError(provider.KindAuth, "digitalocean", "", "bad token", nil)}
	v, _ := newTestVault(t, stub)

	_, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"bad"}`), false)
	assert.ErrorIs(t, err, ErrCredentialRejected)
}

func TestVault_Connect_InvalidSecretShape(t *testing.T) {
	v, _ := newTestVault(t, nil)

	_, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, []byte(`{}`), true)
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestVault_Connect_DuplicateOwnerProvider(t *testing.T) {
	v, _ := newTestVault(t, nil)
	ctx := context.Background()

	_, err := v.Connect(ctx, "user-1", domain.ProviderHetzner, []byte(`{"api_token":"a"}`), true)
	require.NoError(t, err)

	_, err = v.Connect(ctx, "user-1", domain.ProviderHetzner, []byte(`{"api_token":"b"}`), true)
	assert.ErrorIs(t, err, store.ErrDuplicateID)
}

func TestVault_Open_RoundTrip(t *testing.T) {
	v, _ := newTestVault(t, nil)
	secret := []byte(`{"api_token":"dop_v1_abc"}`)

	cred, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, secret, true)
	require.NoError(t, err)

	opened, err := v.Open(cred)
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestVault_Open_WrongOwnerFails(t *testing.T) {
	v, _ := newTestVault(t, nil)

	cred, err := v.Connect(context.Background(), "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"x"}`), true)
	require.NoError(t, err)

	cred.OwnerID = "user-2"
	_, err = v.Open(cred)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestVault_RotateAll(t *testing.T) {
	v, s := newTestVault(t, nil)
	ctx := context.Background()

	secret := []byte(`{"api_token":"dop_v1_abc"}`)
	cred, err := v.Connect(ctx, "user-1", domain.ProviderDigitalOcean, secret, true)
	require.NoError(t, err)
	originalEnvelope := cred.Envelope

	results, err := v.RotateAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	rotated, err := s.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.NotEqual(t, originalEnvelope, rotated.Envelope)
	require.NotNil(t, rotated.RotatedAt)

	// Rotated envelope still opens to the same secret.
	opened, err := v.Open(rotated)
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestVault_RotateAll_RevalidatesRealCredentials(t *testing.T) {
	stub := &stubAdapter{identity: "dev@acme.io"}
	v, s := newTestVault(t, stub)
	ctx := context.Background()

	cred, err := v.Connect(ctx, "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"dop_v1_abc"}`), false)
	require.NoError(t, err)
	originalEnvelope := cred.Envelope

	// The provider has since revoked the token.
	stub.validateErr = errors.New("401 unable to authenticate")

	results, err := v.RotateAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.ErrorIs(t, results[0].Err, ErrCredentialRejected)

	// A revoked secret is never re-sealed.
	stored, err := s.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, originalEnvelope, stored.Envelope)
	assert.Nil(t, stored.RotatedAt)

	// Once the provider accepts the credential again, rotation proceeds.
	stub.validateErr = nil
	results, err = v.RotateAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	rotated, err := s.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.NotEqual(t, originalEnvelope, rotated.Envelope)
	require.NotNil(t, rotated.RotatedAt)
}

func TestVault_RotateAll_PerItemFailure(t *testing.T) {
	v, s := newTestVault(t, nil)
	ctx := context.Background()

	good, err := v.Connect(ctx, "user-1", domain.ProviderDigitalOcean, []byte(`{"api_token":"x"}`), true)
	require.NoError(t, err)

	// Corrupt a second credential's envelope directly in the store.
	bad, err := domain.NewCredential("user-2", domain.ProviderHetzner, "not-a-valid-envelope", domain.ModeDemo)
	require.NoError(t, err)
	require.NoError(t, s.CreateCredential(ctx, bad))

	results, err := v.RotateAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]error{}
	for _, r := range results {
		byID[r.CredentialID] = r.Err
	}
	assert.NoError(t, byID[good.ID])
	assert.Error(t, byID[bad.ID])
}
