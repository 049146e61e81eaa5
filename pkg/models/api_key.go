package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates a tenant's calls to the gateway. Raw keys look like
// "gb_" + 48 hex chars and are returned exactly once at creation; the row
// keeps only the bcrypt hash plus a short prefix for lookup. Scopes gate
// route groups: "tasks" for submission and streaming, "admin" for
// provider, credential, and key management.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"    json:"tenant_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
