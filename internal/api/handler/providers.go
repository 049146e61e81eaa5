package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/genbridge/genbridge/internal/api/middleware"
	"github.com/genbridge/genbridge/internal/api/response"
	"github.com/genbridge/genbridge/internal/store"
	"github.com/genbridge/genbridge/pkg/models"
)

// ProviderStore is the slice of the data layer the provider and credential
// admin handlers need.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	ListProviders(ctx context.Context, tenantID uuid.UUID) ([]*models.Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Provider, error)
	DeleteProvider(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateCredential(ctx context.Context, c *models.Credential) error
	ListCredentials(ctx context.Context, providerID uuid.UUID, tenantID uuid.UUID) ([]*models.Credential, error)
	DeleteCredential(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// KnownVendors guards provider registration against typos; it is set from
// the adapter registry at wiring time.
type KnownVendors func() []string

// NewCreateProviderHandler returns the handler for POST /api/v1/providers.
func NewCreateProviderHandler(st ProviderStore, vendors KnownVendors) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			Vendor       string `json:"vendor"`
			Name         string `json:"name"`
			BaseURL      string `json:"base_url"`
			ShareBaseURL bool   `json:"share_base_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Vendor == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "vendor is required", nil)
			return
		}
		if !vendorKnown(vendors, req.Vendor) {
			response.Error(w, http.StatusBadRequest, "UNKNOWN_VENDOR",
				"vendor is not supported", map[string]any{"supported": vendors()})
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		provider := &models.Provider{
			ID:           uuid.New(),
			TenantID:     tenantID,
			Vendor:       req.Vendor,
			Name:         req.Name,
			BaseURL:      req.BaseURL,
			ShareBaseURL: req.ShareBaseURL,
		}

		if err := st.CreateProvider(r.Context(), provider); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_PROVIDER",
					"A provider with this vendor and name already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create provider", nil)
			return
		}

		response.Created(w, provider)
	}
}

// NewListProvidersHandler returns the handler for GET /api/v1/providers.
func NewListProvidersHandler(st ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		providers, err := st.ListProviders(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list providers", nil)
			return
		}

		response.JSON(w, providers)
	}
}

// NewDeleteProviderHandler returns the handler for DELETE /api/v1/providers/{providerID}.
func NewDeleteProviderHandler(st ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "providerID must be a UUID", nil)
			return
		}

		if err := st.DeleteProvider(r.Context(), providerID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "Provider not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete provider", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// NewCreateCredentialHandler returns the handler for
// POST /api/v1/providers/{providerID}/credentials.
func NewCreateCredentialHandler(st ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "providerID must be a UUID", nil)
			return
		}

		var req struct {
			Label  string `json:"label"`
			Secret string `json:"secret"`
			Shared bool   `json:"shared"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Secret == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "secret is required", nil)
			return
		}

		// The provider must exist and belong to this tenant before a secret
		// is attached to it.
		if _, err := st.GetProvider(r.Context(), providerID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "PROVIDER_NOT_FOUND", "Provider not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load provider", nil)
			return
		}

		cred := &models.Credential{
			ID:         uuid.New(),
			ProviderID: providerID,
			TenantID:   tenantID,
			Label:      req.Label,
			Secret:     req.Secret,
			Enabled:    true,
			Shared:     req.Shared,
		}

		if err := st.CreateCredential(r.Context(), cred); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create credential", nil)
			return
		}

		response.Created(w, cred)
	}
}

// NewListCredentialsHandler returns the handler for
// GET /api/v1/providers/{providerID}/credentials. Secrets never appear in
// the response.
func NewListCredentialsHandler(st ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "providerID must be a UUID", nil)
			return
		}

		creds, err := st.ListCredentials(r.Context(), providerID, tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list credentials", nil)
			return
		}

		response.JSON(w, creds)
	}
}

// NewDeleteCredentialHandler returns the handler for
// DELETE /api/v1/credentials/{credentialID}.
func NewDeleteCredentialHandler(st ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		credentialID, err := uuid.Parse(chi.URLParam(r, "credentialID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "credentialID must be a UUID", nil)
			return
		}

		if err := st.DeleteCredential(r.Context(), credentialID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "CREDENTIAL_NOT_FOUND", "Credential not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete credential", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func vendorKnown(vendors KnownVendors, vendor string) bool {
	for _, v := range vendors() {
		if v == vendor {
			return true
		}
	}
	return false
}
