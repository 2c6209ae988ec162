package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderIdentity enumerates the supported AI vendors.
type ProviderIdentity string

const (
	ProviderAnthropic ProviderIdentity = "anthropic"
	ProviderOpenAI    ProviderIdentity = "openai"
	ProviderGoogle    ProviderIdentity = "google"
	ProviderXAI       ProviderIdentity = "xai"
	ProviderBedrock   ProviderIdentity = "bedrock"
)

// AllProviders returns every identity in a stable order.
func AllProviders() []ProviderIdentity {
	return []ProviderIdentity{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderXAI, ProviderBedrock}
}

// ParseProviderIdentity validates a provider tag.
func ParseProviderIdentity(s string) (ProviderIdentity, error) {
	id := ProviderIdentity(s)
	if !id.Valid() {
		return "", fmt.Errorf("unknown provider: %q", s)
	}
	return id, nil
}

// Valid reports whether the identity is one of the known vendors.
func (p ProviderIdentity) Valid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderXAI, ProviderBedrock:
		return true
	}
	return false
}

func (p ProviderIdentity) String() string { return string(p) }

// ProviderCredential is a tenant's stored configuration for one provider.
// Secrets are AES-GCM sealed; IV and auth tag are kept alongside the ciphertext.
type ProviderCredential struct {
	ID                 uuid.UUID        `db:"id"`
	TenantID           string           `db:"tenant_id"`
	Provider           ProviderIdentity `db:"provider"`
	EncryptedAPIKey    string           `db:"encrypted_api_key"`
	APIKeyIV           string           `db:"api_key_iv"`
	APIKeyAuthTag      string           `db:"api_key_auth_tag"`
	EncryptedSecretKey *string          `db:"encrypted_secret_key"`
	SecretKeyIV        *string          `db:"secret_key_iv"`
	SecretKeyAuthTag   *string          `db:"secret_key_auth_tag"`
	Region             *string          `db:"region"`
	DefaultModel       string           `db:"default_model"`
	IsEnabled          bool             `db:"is_enabled"`
	IsJudgeModel       bool             `db:"is_judge_model"`
	CreatedAt          time.Time        `db:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at"`
}

// HasSecretKey reports whether a sealed secret key (bedrock) is present.
func (c *ProviderCredential) HasSecretKey() bool {
	return c.EncryptedSecretKey != nil && *c.EncryptedSecretKey != ""
}
