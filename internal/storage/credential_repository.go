package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

const credentialColumns = `id, tenant_id, provider, encrypted_api_key, api_key_iv, api_key_auth_tag,
	encrypted_secret_key, secret_key_iv, secret_key_auth_tag, region, default_model,
	is_enabled, is_judge_model, created_at, updated_at`

// CredentialRepository handles provider credential persistence.
// Rows are read on every resolution and never cached.
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// ListEnabled returns a tenant's enabled credentials, most recently updated first
func (r *CredentialRepository) ListEnabled(ctx context.Context, tenantID string) ([]*models.ProviderCredential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM provider_credentials
		WHERE tenant_id = ? AND is_enabled = ? ORDER BY updated_at DESC`, tenantID, true)
}

// ListJudges returns a tenant's enabled credentials flagged as judge models
func (r *CredentialRepository) ListJudges(ctx context.Context, tenantID string) ([]*models.ProviderCredential, error) {
	return r.list(ctx, `SELECT `+credentialColumns+` FROM provider_credentials
		WHERE tenant_id = ? AND is_enabled = ? AND is_judge_model = ? ORDER BY updated_at DESC`, tenantID, true, true)
}

func (r *CredentialRepository) list(ctx context.Context, query string, args ...any) ([]*models.ProviderCredential, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var creds []*models.ProviderCredential
	if err := r.db.conn.SelectContext(ctx, &creds, r.db.Rebind(query), args...); err != nil {
		return nil, eris.Wrap(err, "failed to list provider credentials")
	}
	return creds, nil
}

// Get returns the tenant's credential for one provider, enabled or not
func (r *CredentialRepository) Get(ctx context.Context, tenantID string, provider models.ProviderIdentity) (*models.ProviderCredential, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := r.db.Rebind(`SELECT ` + credentialColumns + ` FROM provider_credentials
		WHERE tenant_id = ? AND provider = ?`)

	var cred models.ProviderCredential
	if err := r.db.conn.GetContext(ctx, &cred, query, tenantID, string(provider)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, eris.Wrap(err, "failed to get provider credential")
	}
	return &cred, nil
}

// Upsert inserts or replaces the tenant's credential for cred.Provider.
// ID and timestamps are filled in when zero.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.ProviderCredential) error {
	if cred.TenantID == "" {
		return eris.New("tenant id is required")
	}
	if !cred.Provider.Valid() {
		return eris.Errorf("unknown provider %q", cred.Provider)
	}
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO provider_credentials (` + credentialColumns + `)
		VALUES (:id, :tenant_id, :provider, :encrypted_api_key, :api_key_iv, :api_key_auth_tag,
			:encrypted_secret_key, :secret_key_iv, :secret_key_auth_tag, :region, :default_model,
			:is_enabled, :is_judge_model, :created_at, :updated_at)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			encrypted_api_key = excluded.encrypted_api_key,
			api_key_iv = excluded.api_key_iv,
			api_key_auth_tag = excluded.api_key_auth_tag,
			encrypted_secret_key = excluded.encrypted_secret_key,
			secret_key_iv = excluded.secret_key_iv,
			secret_key_auth_tag = excluded.secret_key_auth_tag,
			region = excluded.region,
			default_model = excluded.default_model,
			is_enabled = excluded.is_enabled,
			is_judge_model = excluded.is_judge_model,
			updated_at = excluded.updated_at`

	if _, err := r.db.conn.NamedExecContext(ctx, query, cred); err != nil {
		return eris.Wrap(err, "failed to upsert provider credential")
	}
	return nil
}

// Delete removes the tenant's credential for a provider
func (r *CredentialRepository) Delete(ctx context.Context, tenantID string, provider models.ProviderIdentity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	res, err := r.db.conn.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM provider_credentials WHERE tenant_id = ? AND provider = ?`),
		tenantID, string(provider))
	if err != nil {
		return eris.Wrap(err, "failed to delete provider credential")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
