package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateProvider(ctx context.Context, p *models.Provider) error
	ListProviders(ctx context.Context, tenantID uuid.UUID) ([]*models.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Provider, error)
	DeleteProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateCredential(ctx context.Context, c *models.Credential) error
	ListCredentials(ctx context.Context, providerID uuid.UUID, tenantID uuid.UUID) ([]*models.Credential, error)
	DeleteCredential(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	// Resolver lookups. All return ErrNotFound when nothing matches.
	GetProxyOverride(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.ProxyOverride, error)
	GetTenantProvider(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Provider, error)
	GetOwnedCredential(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Credential, *models.Provider, error)
	GetOwnSharedCredential(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Credential, *models.Provider, error)
	GetAnySharedCredential(ctx context.Context, vendor string, now time.Time) (*models.Credential, *models.Provider, error)
	GetSharedBaseURL(ctx context.Context, vendor string) (string, error)

	// Circuit-breaker bookkeeping. Both are single atomic statements so
	// concurrent task retries stay consistent.
	IncrementCredentialFailure(ctx context.Context, id uuid.UUID, threshold int, cooldown time.Duration) error
	ResetCredentialFailures(ctx context.Context, id uuid.UUID) error

	// Ingestion dedup index.
	GetAssetBySourceURL(ctx context.Context, sourceURL string) (*models.AssetRecord, error)
	UpsertAsset(ctx context.Context, rec *models.AssetRecord) error
}
