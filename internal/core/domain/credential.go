package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Provider Types
// =============================================================================

// ProviderType identifies a hosting provider.
type ProviderType string

const (
	ProviderDigitalOcean ProviderType = "digitalocean"
	ProviderHetzner      ProviderType = "hetzner"
	ProviderAWS          ProviderType = "aws"
)

// IsValid checks if the provider type is supported.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderDigitalOcean, ProviderHetzner, ProviderAWS:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable name for the provider.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderDigitalOcean:
		return "DigitalOcean"
	case ProviderHetzner:
		return "Hetzner"
	case ProviderAWS:
		return "AWS"
	default:
		return string(p)
	}
}

// =============================================================================
// Credential Errors
// =============================================================================

var (
	ErrInvalidProviderType = errors.New("invalid provider type: must be digitalocean, hetzner, or aws")
	ErrOwnerRequired       = errors.New("owner ID is required")
	ErrEnvelopeRequired    = errors.New("encrypted envelope is required")
	ErrCredentialExpired   = errors.New("credential has expired")
)

// =============================================================================
// Credential
// =============================================================================

// CredentialMode distinguishes real provider credentials from placeholder
// demo markers used for simulated deployments.
type CredentialMode string

const (
	ModeReal CredentialMode = "real"
	ModeDemo CredentialMode = "demo"
)

// Credential is a stored, encrypted per-user per-provider secret. The secret
// material is opaque outside the vault; only the base64 envelope is ever
// persisted.
type Credential struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"-"`
	Provider  ProviderType   `json:"provider"`
	Mode      CredentialMode `json:"mode"`
	Envelope  string         `json:"-"` // base64-encoded encrypted envelope, never serialized
	Identity  string         `json:"identity,omitempty"` // provider-side account identity from validation
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	RotatedAt *time.Time     `json:"rotated_at,omitempty"`
}

// GenerateCredentialID generates a new credential ID with "cred_" prefix.
func GenerateCredentialID() string {
	return "cred_" + uuid.New().String()[:8]
}

// NewCredential creates a stored credential with validation. envelope is the
// base64 envelope produced by the vault; for demo credentials it may carry a
// sealed placeholder.
func NewCredential(ownerID string, provider ProviderType, envelope string, mode CredentialMode) (*Credential, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if !provider.IsValid() {
		return nil, ErrInvalidProviderType
	}
	if envelope == "" {
		return nil, ErrEnvelopeRequired
	}

	return &Credential{
		ID:        GenerateCredentialID(),
		OwnerID:   ownerID,
		Provider:  provider,
		Mode:      mode,
		Envelope:  envelope,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsDemo reports whether the credential is a demo marker.
func (c *Credential) IsDemo() bool {
	return c.Mode == ModeDemo
}

// Usable reports whether the credential can back a deployment attempt.
func (c *Credential) Usable(now time.Time) error {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return ErrCredentialExpired
	}
	return nil
}
