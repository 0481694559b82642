package provider

import (
	"fmt"
	"log/slog"

	"github.com/artpar/launchpad/internal/core/domain"
	coreprovider "github.com/artpar/launchpad/internal/core/provider"
)

// NewAdapter creates a provider adapter from decrypted credential JSON.
func NewAdapter(providerType domain.ProviderType, credJSON []byte, logger *slog.Logger) (Adapter, error) {
	switch providerType {
	case domain.ProviderAWS:
		creds, err := coreprovider.ParseAWSCredentials(credJSON)
		if err != nil {
			return nil, fmt.Errorf("invalid AWS credentials: %w", err)
		}
		return NewAWSAdapter(creds.AccessKeyID, creds.SecretAccessKey, creds.Region, logger), nil

	case domain.ProviderDigitalOcean:
		creds, err := coreprovider.ParseDigitalOceanCredentials(credJSON)
		if err != nil {
			return nil, fmt.Errorf("invalid DigitalOcean credentials: %w", err)
		}
		return NewDigitalOceanAdapter(creds.APIToken, logger), nil

	case domain.ProviderHetzner:
		creds, err := coreprovider.ParseHetznerCredentials(credJSON)
		if err != nil {
			return nil, fmt.Errorf("invalid Hetzner credentials: %w", err)
		}
		return NewHetznerAdapter(creds.APIToken, logger), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
