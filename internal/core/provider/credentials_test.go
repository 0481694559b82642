package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCredentialsJSON(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		json     string
		wantErr  error
	}{
		{"valid digitalocean", "digitalocean", `{"api_token":"dop_v1_abc"}`, nil},
		{"digitalocean missing token", "digitalocean", `{}`, ErrDOTokenRequired},
		{"valid hetzner", "hetzner", `{"api_token":"hc_abc"}`, nil},
		{"hetzner missing token", "hetzner", `{}`, ErrHetznerTokenRequired},
		{"valid aws", "aws", `{"access_key_id":"AKIA123","secret_access_key":"s3cr3t"}`, nil},
		{"aws missing access key", "aws", `{"secret_access_key":"s3cr3t"}`, ErrAWSAccessKeyRequired},
		{"aws missing secret", "aws", `{"access_key_id":"AKIA123"}`, ErrAWSSecretKeyRequired},
		{"unknown provider", "vercel", `{}`, ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentialsJSON(tt.provider, []byte(tt.json))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredentialsJSON_Malformed(t *testing.T) {
	for _, provider := range []string{"aws", "digitalocean", "hetzner"} {
		assert.Error(t, ValidateCredentialsJSON(provider, []byte("not json")))
	}
}

func TestParseAWSCredentials(t *testing.T) {
	creds, err := ParseAWSCredentials([]byte(`{"access_key_id":"AKIA123","secret_access_key":"s3cr3t","region":"eu-central-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "AKIA123", creds.AccessKeyID)
	assert.Equal(t, "eu-central-1", creds.Region)
}
