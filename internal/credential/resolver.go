// Package credential resolves which vendor endpoint and secret service a
// task, with graceful degradation from tenant-owned credentials to shared
// pool credentials.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

var (
	// ErrNoCredential means no usable secret exists for the (tenant, vendor) pair.
	ErrNoCredential = errors.New("no usable credential for vendor")
	// ErrMisconfigured means a matching record exists but is missing a
	// base URL or secret.
	ErrMisconfigured = errors.New("credential record is misconfigured")
)

// Resolver turns (tenant, vendor, optional model) into a ProviderContext.
// Read-mostly: it only queries stored rows, never calls a vendor.
type Resolver struct {
	store store.Store
	// passthrough vendors authenticate at the transport level (or not at
	// all) and resolve a base URL only.
	passthrough map[string]bool
	// defaultBaseURLs holds the official endpoint per vendor, used when no
	// stored provider record supplies one.
	defaultBaseURLs map[string]string
}

// NewResolver creates a Resolver. passthrough lists vendors that require no
// secret; defaultBaseURLs maps vendor name to its official endpoint.
func NewResolver(s store.Store, passthrough []string, defaultBaseURLs map[string]string) *Resolver {
	pt := make(map[string]bool, len(passthrough))
	for _, v := range passthrough {
		pt[v] = true
	}
	return &Resolver{store: s, passthrough: pt, defaultBaseURLs: defaultBaseURLs}
}

// Resolve produces a fresh ProviderContext for one task invocation.
//
// Resolution order, first match wins:
//  1. proxy override scoped to (tenant, vendor) — supplies both base URL
//     and secret, bypassing everything else
//  2. the tenant's own enabled credential (earliest-created)
//  3. a shared credential on the tenant's own provider record
//  4. any enabled shared credential for the vendor not currently
//     quarantined (earliest-updated)
//
// The base URL independently falls back to a vendor-wide shared base URL,
// then to the vendor's official endpoint.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, vendor, explicitModel string) (models.ProviderContext, error) {
	pctx := models.ProviderContext{TenantID: tenantID, Model: explicitModel}

	override, err := r.store.GetProxyOverride(ctx, tenantID, vendor)
	if err == nil {
		if override.BaseURL == "" || override.Secret == "" {
			return pctx, fmt.Errorf("proxy override for %s: %w", vendor, ErrMisconfigured)
		}
		pctx.BaseURL = override.BaseURL
		pctx.SecretKey = override.Secret
		return pctx, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return pctx, fmt.Errorf("lookup proxy override: %w", err)
	}

	if r.passthrough[vendor] {
		// The tenant's own provider record is still the primary base-URL
		// source even when no secret is needed.
		var ownBaseURL string
		provider, err := r.store.GetTenantProvider(ctx, tenantID, vendor)
		if err == nil {
			ownBaseURL = provider.BaseURL
		} else if !errors.Is(err, store.ErrNotFound) {
			return pctx, fmt.Errorf("lookup tenant provider: %w", err)
		}

		baseURL, err := r.resolveBaseURL(ctx, vendor, ownBaseURL)
		if err != nil {
			return pctx, err
		}
		pctx.BaseURL = baseURL
		return pctx, nil
	}

	cred, provider, err := r.lookupCredential(ctx, tenantID, vendor)
	if err != nil {
		return pctx, err
	}
	if cred.Secret == "" {
		return pctx, fmt.Errorf("credential %s for %s: %w", cred.Label, vendor, ErrMisconfigured)
	}

	baseURL, err := r.resolveBaseURL(ctx, vendor, provider.BaseURL)
	if err != nil {
		return pctx, err
	}

	pctx.BaseURL = baseURL
	pctx.SecretKey = cred.Secret
	pctx.CredentialID = cred.ID
	return pctx, nil
}

func (r *Resolver) lookupCredential(ctx context.Context, tenantID uuid.UUID, vendor string) (*models.Credential, *models.Provider, error) {
	cred, provider, err := r.store.GetOwnedCredential(ctx, tenantID, vendor)
	if err == nil {
		return cred, provider, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup owned credential: %w", err)
	}

	cred, provider, err = r.store.GetOwnSharedCredential(ctx, tenantID, vendor)
	if err == nil {
		// A quarantined shared credential is never selected, even on the
		// tenant's own provider.
		if !cred.Quarantined(time.Now()) {
			return cred, provider, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup own shared credential: %w", err)
	}

	cred, provider, err = r.store.GetAnySharedCredential(ctx, vendor, time.Now())
	if err == nil {
		return cred, provider, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup shared credential: %w", err)
	}

	return nil, nil, fmt.Errorf("vendor %s: %w", vendor, ErrNoCredential)
}

func (r *Resolver) resolveBaseURL(ctx context.Context, vendor, providerBaseURL string) (string, error) {
	if providerBaseURL != "" {
		return providerBaseURL, nil
	}

	shared, err := r.store.GetSharedBaseURL(ctx, vendor)
	if err == nil {
		return shared, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("lookup shared base url: %w", err)
	}

	if official := r.defaultBaseURLs[vendor]; official != "" {
		return official, nil
	}
	return "", fmt.Errorf("no base URL for vendor %s: %w", vendor, ErrMisconfigured)
}
