package registry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/providers"
	"trailblazer_ai/internal/utils"
)

// CredentialStore reads stored credentials. storage.CredentialRepository implements it.
type CredentialStore interface {
	ListEnabled(ctx context.Context, tenantID string) ([]*models.ProviderCredential, error)
	ListJudges(ctx context.Context, tenantID string) ([]*models.ProviderCredential, error)
}

// Decrypter opens sealed credentials. storage.KeyRing implements it.
type Decrypter interface {
	OpenCredential(cred *models.ProviderCredential) (apiKey, secretKey string, err error)
}

// DatabaseStrategy serves tenant credentials from the database, newest first.
// Plaintext is produced per call and never cached.
type DatabaseStrategy struct {
	store     CredentialStore
	keys      Decrypter
	timeout   time.Duration
	maxTokens int
	logger    *utils.Logger
}

// NewDatabaseStrategy creates a database strategy
func NewDatabaseStrategy(store CredentialStore, keys Decrypter, timeout time.Duration, maxTokens int) *DatabaseStrategy {
	return &DatabaseStrategy{
		store:     store,
		keys:      keys,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    utils.NewLogger("registry-db"),
	}
}

func (s *DatabaseStrategy) Name() string { return "database" }

// Candidates lists enabled (or judge) credentials for the tenant. A credential that
// cannot be decrypted makes that provider unavailable; it is logged and skipped.
func (s *DatabaseStrategy) Candidates(ctx context.Context, q Query) ([]providers.ProviderConfig, error) {
	if s.store == nil || s.keys == nil || q.Tenant == "" {
		return nil, ErrNotApplicable
	}

	list := s.store.ListEnabled
	if q.Judge {
		list = s.store.ListJudges
	}
	creds, err := list(ctx, q.Tenant)
	if err != nil {
		return nil, eris.Wrap(err, "failed to list provider credentials")
	}

	out := make([]providers.ProviderConfig, 0, len(creds))
	for _, cred := range creds {
		if q.Provider != "" && cred.Provider != q.Provider {
			continue
		}
		if !cred.Provider.Valid() {
			s.logger.Warn("Skipping credential with unknown provider", "tenant", q.Tenant, "provider", cred.Provider)
			continue
		}

		apiKey, secretKey, err := s.keys.OpenCredential(cred)
		if err != nil {
			s.logger.Warn("Provider unavailable: credential could not be decrypted",
				"tenant", q.Tenant, "provider", cred.Provider, "error", err)
			continue
		}

		cfg := providers.ProviderConfig{
			Identity:     cred.Provider,
			APIKey:       apiKey,
			SecretKey:    secretKey,
			DefaultModel: cred.DefaultModel,
			Timeout:      s.timeout,
			MaxTokens:    s.maxTokens,
			IsJudge:      cred.IsJudgeModel,
			Source:       s.Name(),
			Region:       utils.StringPtrValue(cred.Region),
		}
		out = append(out, cfg)
	}

	if len(out) == 0 {
		return nil, ErrNotApplicable
	}
	return out, nil
}
