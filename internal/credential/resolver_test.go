package credential_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge/genbridge/internal/credential"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

// fakeStore implements the resolver-facing store lookups; the embedded
// interface panics on anything the resolver should never call.
type fakeStore struct {
	store.Store

	override      *models.ProxyOverride
	owned         *models.Credential
	ownedProv     *models.Provider
	ownShared     *models.Credential
	ownSharedProv *models.Provider
	anyShared     *models.Credential
	anySharedProv *models.Provider
	tenantProv    *models.Provider
	sharedBaseURL string
}

func (f *fakeStore) GetTenantProvider(_ context.Context, _ uuid.UUID, _ string) (*models.Provider, error) {
	if f.tenantProv == nil {
		return nil, store.ErrNotFound
	}
	return f.tenantProv, nil
}

func (f *fakeStore) GetProxyOverride(_ context.Context, _ uuid.UUID, _ string) (*models.ProxyOverride, error) {
	if f.override == nil {
		return nil, store.ErrNotFound
	}
	return f.override, nil
}

func (f *fakeStore) GetOwnedCredential(_ context.Context, _ uuid.UUID, _ string) (*models.Credential, *models.Provider, error) {
	if f.owned == nil {
		return nil, nil, store.ErrNotFound
	}
	return f.owned, f.ownedProv, nil
}

func (f *fakeStore) GetOwnSharedCredential(_ context.Context, _ uuid.UUID, _ string) (*models.Credential, *models.Provider, error) {
	if f.ownShared == nil {
		return nil, nil, store.ErrNotFound
	}
	return f.ownShared, f.ownSharedProv, nil
}

func (f *fakeStore) GetAnySharedCredential(_ context.Context, _ string, now time.Time) (*models.Credential, *models.Provider, error) {
	if f.anyShared == nil || f.anyShared.Quarantined(now) {
		return nil, nil, store.ErrNotFound
	}
	return f.anyShared, f.anySharedProv, nil
}

func (f *fakeStore) GetSharedBaseURL(_ context.Context, _ string) (string, error) {
	if f.sharedBaseURL == "" {
		return "", store.ErrNotFound
	}
	return f.sharedBaseURL, nil
}

func newResolver(s store.Store) *credential.Resolver {
	return credential.NewResolver(s, []string{"ollama"}, map[string]string{
		"openai": "https://api.openai.com/v1",
	})
}

func cred(secret string, shared bool) *models.Credential {
	return &models.Credential{
		ID:     uuid.New(),
		Label:  "test",
		Secret: secret,
		Enabled: true,
		Shared:  shared,
	}
}

func prov(baseURL string) *models.Provider {
	return &models.Provider{ID: uuid.New(), Vendor: "openai", BaseURL: baseURL}
}

func TestResolve_ProxyOverrideWinsOverStoredCredentials(t *testing.T) {
	tenantID := uuid.New()
	fs := &fakeStore{
		override: &models.ProxyOverride{
			TenantID: tenantID,
			Vendor:   "openai",
			BaseURL:  "https://proxy.example/v1",
			Secret:   "sk-x",
		},
		owned:     cred("sk-owned", false),
		ownedProv: prov("https://direct.example"),
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), tenantID, "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example/v1", pctx.BaseURL)
	assert.Equal(t, "sk-x", pctx.SecretKey)
}

func TestResolve_OwnedBeatsShared(t *testing.T) {
	fs := &fakeStore{
		owned:         cred("sk-owned", false),
		ownedProv:     prov("https://own.example/v1"),
		anyShared:     cred("sk-shared", true),
		anySharedProv: prov("https://pool.example/v1"),
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-owned", pctx.SecretKey)
	assert.Equal(t, "https://own.example/v1", pctx.BaseURL)
}

func TestResolve_FallsBackToSharedPool(t *testing.T) {
	fs := &fakeStore{
		anyShared:     cred("sk-shared", true),
		anySharedProv: prov("https://pool.example/v1"),
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-shared", pctx.SecretKey)
}

func TestResolve_QuarantinedSharedIsSkipped(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	quarantined := cred("sk-shared", true)
	quarantined.SharedDisabledUntil = &until

	fs := &fakeStore{
		anyShared:     quarantined,
		anySharedProv: prov("https://pool.example/v1"),
	}

	_, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrNoCredential)
}

func TestResolve_OwnSharedQuarantinedFallsThrough(t *testing.T) {
	until := time.Now().Add(time.Hour)
	ownShared := cred("sk-own-shared", true)
	ownShared.SharedDisabledUntil = &until

	fs := &fakeStore{
		ownShared:     ownShared,
		ownSharedProv: prov(""),
		anyShared:     cred("sk-pool", true),
		anySharedProv: prov("https://pool.example/v1"),
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-pool", pctx.SecretKey)
}

func TestResolve_NoCredential(t *testing.T) {
	_, err := newResolver(&fakeStore{}).Resolve(context.Background(), uuid.New(), "openai", "")
	assert.ErrorIs(t, err, credential.ErrNoCredential)
}

func TestResolve_EmptySecretIsMisconfigured(t *testing.T) {
	fs := &fakeStore{
		owned:     cred("", false),
		ownedProv: prov("https://own.example/v1"),
	}

	_, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	assert.ErrorIs(t, err, credential.ErrMisconfigured)
}

func TestResolve_BaseURLFallsBackToSharedThenOfficial(t *testing.T) {
	fs := &fakeStore{
		owned:         cred("sk-owned", false),
		ownedProv:     prov(""),
		sharedBaseURL: "https://shared-host.example/v1",
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "https://shared-host.example/v1", pctx.BaseURL)

	fs.sharedBaseURL = ""
	pctx, err = newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", pctx.BaseURL)
}

func TestResolve_PassthroughVendorNeedsNoSecret(t *testing.T) {
	r := credential.NewResolver(&fakeStore{}, []string{"ollama"}, map[string]string{
		"ollama": "http://localhost:11434",
	})

	pctx, err := r.Resolve(context.Background(), uuid.New(), "ollama", "llama3")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", pctx.BaseURL)
	assert.Empty(t, pctx.SecretKey)
	assert.Equal(t, "llama3", pctx.Model)
}

func TestResolve_PassthroughUsesTenantProviderBaseURL(t *testing.T) {
	fs := &fakeStore{
		tenantProv: &models.Provider{
			ID:      uuid.New(),
			Vendor:  "ollama",
			BaseURL: "http://tenant-ollama.internal:11434",
		},
	}
	r := credential.NewResolver(fs, []string{"ollama"}, map[string]string{
		"ollama": "http://localhost:11434",
	})

	pctx, err := r.Resolve(context.Background(), uuid.New(), "ollama", "")
	require.NoError(t, err)
	assert.Equal(t, "http://tenant-ollama.internal:11434", pctx.BaseURL)
	assert.Empty(t, pctx.SecretKey)
}

func TestResolve_ExplicitModelCarriesThrough(t *testing.T) {
	fs := &fakeStore{
		owned:     cred("sk-owned", false),
		ownedProv: prov("https://own.example/v1"),
	}

	pctx, err := newResolver(fs).Resolve(context.Background(), uuid.New(), "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", pctx.Model)
}

func TestProviderContext_StringRedactsSecret(t *testing.T) {
	pctx := models.ProviderContext{BaseURL: "https://x.example", SecretKey: "sk-verysecretkey"}
	s := pctx.String()
	assert.NotContains(t, s, "verysecretkey")
	assert.Contains(t, s, "sk-ver")
}
