package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a tenant's registration of an external AI vendor: which vendor
// family it is and where to reach it. Credentials hang off a provider.
type Provider struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	TenantID     uuid.UUID `db:"tenant_id"      json:"tenant_id"`
	Vendor       string    `db:"vendor"         json:"vendor"`
	Name         string    `db:"name"           json:"name"`
	BaseURL      string    `db:"base_url"       json:"base_url"`
	ShareBaseURL bool      `db:"share_base_url" json:"share_base_url"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"     json:"updated_at"`
}

// Credential is one secret usable against a provider. A shared credential is
// available to any tenant requesting that vendor when no owned credential
// exists, unless it is quarantined (SharedDisabledUntil in the future).
type Credential struct {
	ID                  uuid.UUID  `db:"id"                    json:"id"`
	ProviderID          uuid.UUID  `db:"provider_id"           json:"provider_id"`
	TenantID            uuid.UUID  `db:"tenant_id"             json:"tenant_id"`
	Label               string     `db:"label"                 json:"label"`
	Secret              string     `db:"secret"                json:"-"`
	Enabled             bool       `db:"enabled"               json:"enabled"`
	Shared              bool       `db:"shared"                json:"shared"`
	FailureCount        int        `db:"failure_count"         json:"failure_count"`
	SharedDisabledUntil *time.Time `db:"shared_disabled_until" json:"shared_disabled_until,omitempty"`
	CreatedAt           time.Time  `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"            json:"updated_at"`
}

// Quarantined reports whether a shared credential is currently excluded
// from selection.
func (c *Credential) Quarantined(now time.Time) bool {
	return c.SharedDisabledUntil != nil && c.SharedDisabledUntil.After(now)
}

// ProxyOverride routes all traffic for (tenant, vendor) through an explicit
// base URL and secret, bypassing stored credentials entirely.
type ProxyOverride struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	TenantID  uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	Vendor    string    `db:"vendor"     json:"vendor"`
	BaseURL   string    `db:"base_url"   json:"base_url"`
	Secret    string    `db:"secret"     json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProviderContext is the resolved call context for one task invocation.
// Constructed fresh per call, never persisted, never shared across
// concurrent invocations.
type ProviderContext struct {
	BaseURL      string
	SecretKey    string
	TenantID     uuid.UUID
	CredentialID uuid.UUID
	Model        string
	OnProgress   ProgressFunc
}

// Emit forwards a progress event through OnProgress when one is attached.
func (p ProviderContext) Emit(event ProgressEvent) {
	if p.OnProgress != nil {
		p.OnProgress(event)
	}
}

// String implements fmt.Stringer with the secret redacted so a context can
// be logged safely.
func (p ProviderContext) String() string {
	key := p.SecretKey
	if len(key) > 6 {
		key = key[:6] + "..."
	}
	return "ProviderContext{base_url=" + p.BaseURL + ", key=" + key + ", model=" + p.Model + "}"
}
