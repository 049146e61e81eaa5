package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genbridge/genbridge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Providers ---

func (s *PostgresStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (id, tenant_id, vendor, name, base_url, share_base_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.TenantID, p.Vendor, p.Name, p.BaseURL, p.ShareBaseURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, tenantID uuid.UUID) ([]*models.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, vendor, name, base_url, share_base_url, created_at, updated_at
		 FROM providers WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Vendor, &p.Name, &p.BaseURL, &p.ShareBaseURL,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, &p)
	}
	return providers, rows.Err()
}

func (s *PostgresStore) GetProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Provider, error) {
	var p models.Provider
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, vendor, name, base_url, share_base_url, created_at, updated_at
		 FROM providers WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.Vendor, &p.Name, &p.BaseURL, &p.ShareBaseURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) DeleteProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM providers WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Credentials ---

func (s *PostgresStore) CreateCredential(ctx context.Context, c *models.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (id, provider_id, tenant_id, label, secret, enabled, shared, failure_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ProviderID, c.TenantID, c.Label, c.Secret, c.Enabled, c.Shared, c.FailureCount,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, providerID uuid.UUID, tenantID uuid.UUID) ([]*models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, tenant_id, label, secret, enabled, shared, failure_count, shared_disabled_until, created_at, updated_at
		 FROM credentials WHERE provider_id = $1 AND tenant_id = $2 ORDER BY created_at ASC`, providerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := scanCredential(rows, &c); err != nil {
			return nil, err
		}
		creds = append(creds, &c)
	}
	return creds, rows.Err()
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM credentials WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Resolver lookups ---

const credentialColumns = `c.id, c.provider_id, c.tenant_id, c.label, c.secret, c.enabled, c.shared,
	 c.failure_count, c.shared_disabled_until, c.created_at, c.updated_at,
	 p.id, p.tenant_id, p.vendor, p.name, p.base_url, p.share_base_url, p.created_at, p.updated_at`

func (s *PostgresStore) GetProxyOverride(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.ProxyOverride, error) {
	var o models.ProxyOverride
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, vendor, base_url, secret, created_at
		 FROM proxy_overrides WHERE tenant_id = $1 AND vendor = $2`, tenantID, vendor,
	).Scan(&o.ID, &o.TenantID, &o.Vendor, &o.BaseURL, &o.Secret, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proxy override: %w", err)
	}
	return &o, nil
}

// GetTenantProvider returns the tenant's own provider record for a vendor,
// earliest-created first.
func (s *PostgresStore) GetTenantProvider(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Provider, error) {
	var p models.Provider
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, vendor, name, base_url, share_base_url, created_at, updated_at
		 FROM providers WHERE tenant_id = $1 AND vendor = $2
		 ORDER BY created_at ASC LIMIT 1`, tenantID, vendor,
	).Scan(&p.ID, &p.TenantID, &p.Vendor, &p.Name, &p.BaseURL, &p.ShareBaseURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant provider: %w", err)
	}
	return &p, nil
}

// GetOwnedCredential returns the tenant's own enabled credential for a
// vendor, earliest-created first.
func (s *PostgresStore) GetOwnedCredential(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Credential, *models.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+`
		 FROM credentials c JOIN providers p ON c.provider_id = p.id
		 WHERE c.tenant_id = $1 AND p.vendor = $2 AND c.enabled AND NOT c.shared
		 ORDER BY c.created_at ASC LIMIT 1`, tenantID, vendor)
	return scanCredentialWithProvider(row)
}

// GetOwnSharedCredential returns a shared, enabled credential sitting on the
// tenant's own provider record.
func (s *PostgresStore) GetOwnSharedCredential(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Credential, *models.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+`
		 FROM credentials c JOIN providers p ON c.provider_id = p.id
		 WHERE c.tenant_id = $1 AND p.vendor = $2 AND c.enabled AND c.shared
		 ORDER BY c.created_at ASC LIMIT 1`, tenantID, vendor)
	return scanCredentialWithProvider(row)
}

// GetAnySharedCredential returns any tenant's enabled shared credential for
// a vendor whose quarantine window has passed, earliest-updated first.
func (s *PostgresStore) GetAnySharedCredential(ctx context.Context, vendor string, now time.Time) (*models.Credential, *models.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+`
		 FROM credentials c JOIN providers p ON c.provider_id = p.id
		 WHERE p.vendor = $1 AND c.enabled AND c.shared
		   AND (c.shared_disabled_until IS NULL OR c.shared_disabled_until <= $2)
		 ORDER BY c.updated_at ASC LIMIT 1`, vendor, now)
	return scanCredentialWithProvider(row)
}

func (s *PostgresStore) GetSharedBaseURL(ctx context.Context, vendor string) (string, error) {
	var baseURL string
	err := s.pool.QueryRow(ctx,
		`SELECT base_url FROM providers
		 WHERE vendor = $1 AND share_base_url AND base_url <> ''
		 ORDER BY created_at ASC LIMIT 1`, vendor,
	).Scan(&baseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get shared base url: %w", err)
	}
	return baseURL, nil
}

// --- Circuit breaker ---

// IncrementCredentialFailure bumps the failure counter and trips the
// quarantine window once the threshold is reached, in one atomic statement.
func (s *PostgresStore) IncrementCredentialFailure(ctx context.Context, id uuid.UUID, threshold int, cooldown time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET
		   failure_count = failure_count + 1,
		   shared_disabled_until = CASE
		     WHEN shared AND failure_count + 1 >= $2 THEN NOW() + $3::interval
		     ELSE shared_disabled_until
		   END,
		   updated_at = NOW()
		 WHERE id = $1`,
		id, threshold, fmt.Sprintf("%d milliseconds", cooldown.Milliseconds()))
	if err != nil {
		return fmt.Errorf("increment credential failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetCredentialFailures(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE credentials SET failure_count = 0, shared_disabled_until = NULL, updated_at = NOW()
		 WHERE id = $1 AND failure_count > 0`, id)
	if err != nil {
		return fmt.Errorf("reset credential failures: %w", err)
	}
	return nil
}

// --- Ingestion index ---

func (s *PostgresStore) GetAssetBySourceURL(ctx context.Context, sourceURL string) (*models.AssetRecord, error) {
	var rec models.AssetRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, source_url, storage_key, durable_url, size_bytes, created_at
		 FROM asset_index WHERE source_url = $1`, sourceURL,
	).Scan(&rec.ID, &rec.TenantID, &rec.SourceURL, &rec.StorageKey, &rec.DurableURL, &rec.SizeBytes, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset by source url: %w", err)
	}
	return &rec, nil
}

// UpsertAsset is idempotent on source_url so a retried task never duplicates
// index rows.
func (s *PostgresStore) UpsertAsset(ctx context.Context, rec *models.AssetRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO asset_index (id, tenant_id, source_url, storage_key, durable_url, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_url) DO UPDATE SET
		   storage_key = EXCLUDED.storage_key,
		   durable_url = EXCLUDED.durable_url,
		   size_bytes = EXCLUDED.size_bytes`,
		rec.ID, rec.TenantID, rec.SourceURL, rec.StorageKey, rec.DurableURL, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner, c *models.Credential) error {
	if err := row.Scan(&c.ID, &c.ProviderID, &c.TenantID, &c.Label, &c.Secret, &c.Enabled, &c.Shared,
		&c.FailureCount, &c.SharedDisabledUntil, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("scan credential: %w", err)
	}
	return nil
}

func scanCredentialWithProvider(row rowScanner) (*models.Credential, *models.Provider, error) {
	var c models.Credential
	var p models.Provider
	err := row.Scan(&c.ID, &c.ProviderID, &c.TenantID, &c.Label, &c.Secret, &c.Enabled, &c.Shared,
		&c.FailureCount, &c.SharedDisabledUntil, &c.CreatedAt, &c.UpdatedAt,
		&p.ID, &p.TenantID, &p.Vendor, &p.Name, &p.BaseURL, &p.ShareBaseURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan credential with provider: %w", err)
	}
	return &c, &p, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
