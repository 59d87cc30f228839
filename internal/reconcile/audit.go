package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/metastore"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/vecindex"
)

// Auditor is the backstop against dropped notifications: on an
// independent timer it sweeps every collection, compares metadata-store
// presence against vector-index presence, and repairs gaps through the
// coordinator entry points.
type Auditor struct {
	svc    *docservice.Service
	meta   *metastore.Store
	vec    vecindex.Index
	logger *slog.Logger
}

// NewAuditor creates a consistency auditor.
func NewAuditor(svc *docservice.Service, meta *metastore.Store, vec vecindex.Index, logger *slog.Logger) *Auditor {
	return &Auditor{svc: svc, meta: meta, vec: vec, logger: logger}
}

// Run performs a full sweep every interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			gaps := a.AuditPass(ctx)
			if len(gaps) > 0 {
				a.logger.Info("audit: pass complete", slog.Int("gaps", len(gaps)))
			}
		}
	}
}

// AuditPass sweeps all collections once and returns the gaps found.
// Repairable gaps are repaired in place; the rest are reported.
func (a *Auditor) AuditPass(ctx context.Context) []models.ConsistencyGap {
	var gaps []models.ConsistencyGap

	collections, err := a.meta.Collections()
	if err != nil {
		a.logger.Warn("audit: list collections failed", slog.String("error", err.Error()))
		return nil
	}

	for _, col := range collections {
		if ctx.Err() != nil {
			return gaps
		}
		gaps = append(gaps, a.auditCollection(ctx, col)...)
	}

	a.reportOrphanCollections(ctx, collections)

	for _, g := range gaps {
		a.logger.Warn("audit: consistency gap",
			slog.String("id", g.DocumentID),
			slog.String("collection", g.Collection),
			slog.String("kind", string(g.Kind)))
	}
	return gaps
}

func (a *Auditor) auditCollection(ctx context.Context, col string) []models.ConsistencyGap {
	var gaps []models.ConsistencyGap

	count, err := a.meta.Count(col)
	if err != nil {
		a.logger.Warn("audit: count failed", slog.String("collection", col), slog.String("error", err.Error()))
		return nil
	}
	docs, _, err := a.meta.List(col, count)
	if err != nil {
		a.logger.Warn("audit: list failed", slog.String("collection", col), slog.String("error", err.Error()))
		return nil
	}

	embeddable := 0
	for _, doc := range docs {
		if doc.Status == models.StatusPendingDeletion {
			continue
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		embeddable++

		has, err := a.vec.Has(ctx, col, doc.ID)
		if err != nil {
			continue
		}
		if !has {
			gaps = append(gaps, models.ConsistencyGap{DocumentID: doc.ID, Collection: col, Kind: models.GapMissingInVectorIndex})
			a.repair(ctx, doc.ID)
			continue
		}

		stored, err := a.vec.Content(ctx, col, doc.ID)
		if err == nil && stored != doc.Content {
			gaps = append(gaps, models.ConsistencyGap{DocumentID: doc.ID, Collection: col, Kind: models.GapStaleEmbedding})
			a.repair(ctx, doc.ID)
		}
	}

	// Vector entries beyond the metadata population are legacy entries
	// the query merger already tolerates; they are reported, never
	// silently dropped and never deleted here.
	vecCount, err := a.vec.Count(ctx, col)
	if err == nil && vecCount > embeddable {
		gaps = append(gaps, models.ConsistencyGap{Collection: col, Kind: models.GapMissingInMetadataStore})
	}

	return gaps
}

// repair re-embeds one document through the coordinator.
func (a *Auditor) repair(ctx context.Context, id string) {
	if err := a.svc.Reindex(ctx, id); err != nil {
		a.logger.Warn("audit: repair failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// reportOrphanCollections logs vector collections with no metadata-side
// counterpart.
func (a *Auditor) reportOrphanCollections(ctx context.Context, metaCols []string) {
	vecCols, err := a.vec.Collections(ctx)
	if err != nil {
		return
	}
	known := make(map[string]struct{}, len(metaCols))
	for _, c := range metaCols {
		known[c] = struct{}{}
	}
	for _, c := range vecCols {
		if _, ok := known[c]; !ok {
			a.logger.Warn("audit: vector collection has no metadata rows", slog.String("collection", c))
		}
	}
}
