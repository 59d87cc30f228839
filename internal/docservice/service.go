// Package docservice implements the hybrid document coordinator: every
// create/update/delete spans the metadata store and the vector index
// with fixed ordering, and a partial failure leaves the document in an
// explicit pending state repaired in the background.
package docservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/checksum"
	"github.com/starford/munin/internal/metastore"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/vecindex"
)

// Query limit bounds.
const (
	MinQueryLimit     = 1
	MaxQueryLimit     = 100
	DefaultQueryLimit = 10
)

const (
	maxIDAttempts = 5
	listSnippet   = 200
)

// Notifier is called after a successful document mutation.
// kind is one of "created", "updated", "deleted", "repaired".
type Notifier func(kind, id, collection string)

// Input is a document write payload as received from a dialect handler.
type Input struct {
	ID         string
	Collection string
	Content    string
	Metadata   map[string]any
}

// Service coordinates writes and reads across the metadata store and
// the vector index.
type Service struct {
	meta     *metastore.Store
	vec      vecindex.Index
	resolver CollectionResolver
	locks    *idLocks
	logger   *slog.Logger
	notify   Notifier

	// store-call timeout; a vector timeout during create is treated as
	// a vector-write failure, never a silent drop.
	opTimeout time.Duration

	repairBase     time.Duration
	repairAttempts int
	retryMu        sync.Mutex
	nextRetry      map[string]time.Time
}

// New creates a document service.
func New(meta *metastore.Store, vec vecindex.Index, resolver CollectionResolver, logger *slog.Logger) *Service {
	return &Service{
		meta:           meta,
		vec:            vec,
		resolver:       resolver,
		locks:          newIDLocks(),
		logger:         logger,
		opTimeout:      10 * time.Second,
		repairBase:     time.Second,
		repairAttempts: 5,
		nextRetry:      make(map[string]time.Time),
	}
}

// SetNotifier registers a callback for document lifecycle events.
func (s *Service) SetNotifier(n Notifier) { s.notify = n }

// SetOpTimeout overrides the per-store-call timeout.
func (s *Service) SetOpTimeout(d time.Duration) { s.opTimeout = d }

func (s *Service) emit(kind, id, collection string) {
	if s.notify != nil {
		s.notify(kind, id, collection)
	}
}

// Create validates and stores a new document. The metadata row is
// written first: if it fails nothing is observable. A vector failure
// afterwards leaves the row in pending_embedding and still reports
// success, since content and metadata are authoritative and available.
func (s *Service) Create(ctx context.Context, p Policy, pathCollection string, in Input) (*models.Document, error) {
	col := s.resolver.Resolve(p, pathCollection, in.Collection)
	if err := p.Validate(in.Content, in.Metadata); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		Collection: col,
		Content:    in.Content,
		Metadata:   in.Metadata,
		Status:     models.StatusActive,
		Checksum:   checksum.Sum([]byte(in.Content)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	explicitID := in.ID != ""
	id := in.ID
	for attempt := 0; ; attempt++ {
		if id == "" {
			id = newDocID()
		}
		doc.ID = id

		unlock := s.locks.lock(id)
		err := s.meta.Insert(doc)
		if err == nil {
			defer unlock()
			break
		}
		unlock()

		if errors.Is(err, apperr.ErrAlreadyExists) {
			if explicitID || attempt+1 >= maxIDAttempts {
				return nil, apperr.ErrConflict
			}
			id = ""
			continue
		}
		return nil, &apperr.WriteError{Err: err}
	}

	s.vectorPhase(ctx, doc)

	// Read back the stored record so the caller sees exactly what the
	// metadata store persisted.
	stored, err := s.getVisible(doc.ID)
	if err != nil {
		return nil, err
	}
	s.emit("created", stored.ID, stored.Collection)
	return stored, nil
}

// vectorPhase writes the embedding half of a hybrid write. On failure
// (including timeout) the row is flagged pending_embedding for the
// background repair loop. Documents without content carry nothing to
// embed and stay metadata-only.
func (s *Service) vectorPhase(ctx context.Context, doc *models.Document) {
	if strings.TrimSpace(doc.Content) == "" {
		return
	}
	vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.vec.Upsert(vctx, doc.Collection, doc.ID, doc.Content, doc.Metadata); err != nil {
		syncErr := &apperr.IndexSyncError{Err: err}
		s.logger.Warn("vector write failed, flagging for repair",
			slog.String("id", doc.ID),
			slog.String("collection", doc.Collection),
			slog.String("error", syncErr.Error()))
		if serr := s.meta.SetStatus(doc.ID, models.StatusPendingEmbedding, 0); serr != nil {
			s.logger.Error("flag pending_embedding failed",
				slog.String("id", doc.ID), slog.String("error", serr.Error()))
		}
		doc.Status = models.StatusPendingEmbedding
		return
	}
	doc.Status = models.StatusActive
}

// Get returns the document with the given id. Rows awaiting physical
// deletion are logically gone and report not found.
func (s *Service) Get(_ context.Context, id string) (*models.Document, error) {
	return s.getVisible(id)
}

func (s *Service) getVisible(id string) (*models.Document, error) {
	doc, err := s.meta.Get(id)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusPendingDeletion {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

// Update validates and replaces an existing document. Content is
// re-embedded only when it changed; a metadata-only change refreshes
// the vector-side snapshot without recomputing the embedding.
func (s *Service) Update(ctx context.Context, p Policy, id string, in Input) (*models.Document, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	existing, err := s.getVisible(id)
	if err != nil {
		return nil, err
	}

	if p == Strict && in.Collection != "" && in.Collection != existing.Collection {
		return nil, apperr.Validation(apperr.ReasonCollectionImmutable)
	}

	content := in.Content
	metadata := in.Metadata
	if p == Permissive {
		// Partial update: absent halves keep their stored value.
		if content == "" {
			content = existing.Content
		}
		if metadata == nil {
			metadata = existing.Metadata
		}
	}
	if err := p.Validate(content, metadata); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if now.Before(existing.CreatedAt) {
		now = existing.CreatedAt
	}
	cs := checksum.Sum([]byte(content))
	contentChanged := cs != existing.Checksum

	doc := &models.Document{
		ID:         id,
		Collection: existing.Collection,
		Content:    content,
		Metadata:   metadata,
		Status:     models.StatusActive,
		Checksum:   cs,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  now,
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if err := s.meta.Update(doc); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, &apperr.WriteError{Err: err}
	}

	if contentChanged || existing.Status == models.StatusPendingEmbedding {
		s.vectorPhase(ctx, doc)
	} else if strings.TrimSpace(content) != "" {
		vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
		if err := s.vec.RefreshSnapshot(vctx, doc.Collection, id, content, doc.Metadata); err != nil {
			// Snapshot freshness is best-effort; the merger prefers
			// metadata-store values anyway.
			s.logger.Warn("snapshot refresh failed",
				slog.String("id", id), slog.String("error", err.Error()))
		}
		cancel()
	}

	stored, err := s.getVisible(id)
	if err != nil {
		return nil, err
	}
	s.emit("updated", id, stored.Collection)
	return stored, nil
}

// Delete removes a document. The vector entry goes first (mirror image
// of create) so a deleted document can never resurface as a similarity
// hit. If the vector delete fails the metadata row is retained in
// pending_deletion, cleanup is retried in the background, and the
// caller still gets success: deletion is logically immediate.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	existing, err := s.getVisible(id)
	if err != nil {
		return err
	}

	if err := s.meta.SetStatus(id, models.StatusPendingDeletion, 0); err != nil {
		return &apperr.WriteError{Err: err}
	}

	vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	vecErr := s.vec.Delete(vctx, existing.Collection, id)
	cancel()
	if vecErr != nil {
		syncErr := &apperr.IndexSyncError{Err: vecErr}
		s.logger.Warn("vector delete failed, retained for repair",
			slog.String("id", id),
			slog.String("collection", existing.Collection),
			slog.String("error", syncErr.Error()))
		s.emit("deleted", id, existing.Collection)
		return nil
	}

	if err := s.meta.Delete(id); err != nil {
		s.logger.Error("metadata delete failed after vector delete",
			slog.String("id", id), slog.String("error", err.Error()))
		return &apperr.WriteError{Err: err}
	}
	s.emit("deleted", id, existing.Collection)
	return nil
}

// Query runs a similarity search and merges the ranked hits with fresh
// metadata. limit 0 selects the default; out-of-range limits are a
// validation failure.
func (s *Service) Query(ctx context.Context, collection, queryText string, limit int) ([]Match, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, apperr.Validation(apperr.ReasonMissingQueryText)
	}
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	if limit < MinQueryLimit || limit > MaxQueryLimit {
		return nil, apperr.Validation(apperr.ReasonLimitOutOfRange)
	}

	vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	hits, err := s.vec.Query(vctx, collection, queryText, limit)
	if err != nil {
		return nil, &apperr.IndexSyncError{Err: err}
	}
	return s.mergeHits(hits), nil
}

// ListItem is a list-view document: content is truncated, metadata is
// complete.
type ListItem struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// List returns up to limit documents, optionally scoped to a
// collection, newest first. Rows awaiting deletion are excluded.
func (s *Service) List(_ context.Context, collection string, limit int) ([]ListItem, int, error) {
	docs, total, err := s.meta.List(collection, limit)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ListItem, 0, len(docs))
	for _, d := range docs {
		if d.Status == models.StatusPendingDeletion {
			total--
			continue
		}
		items = append(items, ListItem{
			ID:         d.ID,
			Collection: d.Collection,
			Content:    snippet(d.Content),
			Metadata:   d.Metadata,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	return items, total, nil
}

// Reindex re-embeds one document and clears its pending state. Used by
// the repair loop and the consistency audit.
func (s *Service) Reindex(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	doc, err := s.meta.Get(id)
	if err != nil {
		return err
	}
	if doc.Status == models.StatusPendingDeletion {
		return apperr.ErrNotFound
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.vec.Upsert(vctx, doc.Collection, doc.ID, doc.Content, doc.Metadata); err != nil {
		return &apperr.IndexSyncError{Err: err}
	}
	if doc.Status != models.StatusActive {
		if err := s.meta.SetStatus(id, models.StatusActive, 0); err != nil {
			return err
		}
	}
	s.emit("repaired", id, doc.Collection)
	return nil
}

// snippet truncates list-view content to 200 runes, matching the
// behavior API consumers already depend on.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= listSnippet {
		return content
	}
	return string(runes[:listSnippet]) + "..."
}

// newDocID generates a compact random document id.
func newDocID() string {
	u := uuid.New()
	return "doc" + strings.ReplaceAll(u.String(), "-", "")[:8]
}
