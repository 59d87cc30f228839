// Package models defines the domain types for Munin.
package models

import "time"

// DocStatus tracks which half of a hybrid write is still outstanding.
type DocStatus string

const (
	// StatusActive means metadata and embedding agree.
	StatusActive DocStatus = "active"
	// StatusPendingEmbedding means the metadata row is committed but the
	// vector write has not succeeded yet.
	StatusPendingEmbedding DocStatus = "pending_embedding"
	// StatusPendingDeletion means the caller was told the document is
	// gone but physical vector cleanup is still outstanding.
	StatusPendingDeletion DocStatus = "pending_deletion"
)

// Document is the canonical record owned by the metadata store.
type Document struct {
	ID           string         `json:"id"`
	Collection   string         `json:"collection"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	Status       DocStatus      `json:"-"`
	SyncAttempts int            `json:"-"`
	Checksum     string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ChangeKind classifies a filesystem change notification.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangeEvent is a single filesystem change notification. Events are
// transient: consumed by the reconciler and discarded, or requeued on
// failure.
type ChangeEvent struct {
	Path       string
	Kind       ChangeKind
	DetectedAt time.Time
}

// GapKind classifies a divergence found by the periodic audit.
type GapKind string

const (
	GapMissingInVectorIndex   GapKind = "missing_in_vector_index"
	GapMissingInMetadataStore GapKind = "missing_in_metadata_store"
	GapStaleEmbedding         GapKind = "stale_embedding"
)

// ConsistencyGap describes one document whose two halves diverge. Gaps
// live only for the duration of an audit pass.
type ConsistencyGap struct {
	DocumentID string
	Collection string
	Kind       GapKind
}
