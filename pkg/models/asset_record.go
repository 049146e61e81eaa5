package models

import (
	"time"

	"github.com/google/uuid"
)

// AssetRecord is one row of the durable ingestion index, keyed by the exact
// source URL so a re-ingestion of the same vendor URL reuses the prior object.
type AssetRecord struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	SourceURL  string    `db:"source_url"  json:"source_url"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	DurableURL string    `db:"durable_url" json:"durable_url"`
	SizeBytes  int64     `db:"size_bytes"  json:"size_bytes"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}
