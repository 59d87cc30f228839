package docservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/munin/internal/models"
)

// RunRepair drives the background repair loop until ctx is cancelled:
// pending_embedding rows are re-embedded and pending_deletion rows get
// their vector cleanup finished, with exponential backoff per document
// up to the bounded attempt count.
func (s *Service) RunRepair(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RepairPass(ctx)
		}
	}
}

// RepairPass runs one sweep over all pending documents and returns the
// number repaired.
func (s *Service) RepairPass(ctx context.Context) int {
	repaired := 0
	repaired += s.repairPending(ctx, models.StatusPendingEmbedding)
	repaired += s.repairPending(ctx, models.StatusPendingDeletion)
	return repaired
}

func (s *Service) repairPending(ctx context.Context, status models.DocStatus) int {
	docs, err := s.meta.ListByStatus(status, s.repairAttempts)
	if err != nil {
		s.logger.Warn("repair: list pending failed",
			slog.String("status", string(status)), slog.String("error", err.Error()))
		return 0
	}

	repaired := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return repaired
		}
		if !s.retryDue(doc.ID) {
			continue
		}
		var rerr error
		if status == models.StatusPendingEmbedding {
			rerr = s.repairEmbedding(ctx, doc)
		} else {
			rerr = s.repairDeletion(ctx, doc)
		}
		if rerr != nil {
			attempts := doc.SyncAttempts + 1
			s.deferRetry(doc.ID, attempts)
			if err := s.meta.SetStatus(doc.ID, status, attempts); err != nil {
				s.logger.Warn("repair: record attempt failed",
					slog.String("id", doc.ID), slog.String("error", err.Error()))
			}
			if attempts >= s.repairAttempts {
				// Exhausted: the audit report is the remaining surface.
				s.logger.Error("repair: attempts exhausted",
					slog.String("id", doc.ID),
					slog.String("status", string(status)),
					slog.Int("attempts", attempts))
			} else {
				s.logger.Warn("repair: attempt failed",
					slog.String("id", doc.ID),
					slog.String("status", string(status)),
					slog.Int("attempts", attempts),
					slog.String("error", rerr.Error()))
			}
			continue
		}
		s.clearRetry(doc.ID)
		repaired++
	}
	return repaired
}

// repairEmbedding finishes the vector half of an interrupted create or
// update. The per-id lock is held for one coordinator call only.
func (s *Service) repairEmbedding(ctx context.Context, doc models.Document) error {
	return s.Reindex(ctx, doc.ID)
}

// repairDeletion finishes the vector cleanup of a logically deleted
// document and then drops the metadata row.
func (s *Service) repairDeletion(ctx context.Context, doc models.Document) error {
	unlock := s.locks.lock(doc.ID)
	defer unlock()

	vctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.vec.Delete(vctx, doc.Collection, doc.ID); err != nil {
		return err
	}
	if err := s.meta.Delete(doc.ID); err != nil {
		return err
	}
	s.emit("repaired", doc.ID, doc.Collection)
	return nil
}

// retryDue reports whether the backoff window for id has elapsed.
func (s *Service) retryDue(id string) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	next, ok := s.nextRetry[id]
	return !ok || time.Now().After(next)
}

// deferRetry schedules the next attempt: base << attempts.
func (s *Service) deferRetry(id string, attempts int) {
	delay := s.repairBase << uint(attempts)
	s.retryMu.Lock()
	s.nextRetry[id] = time.Now().Add(delay)
	s.retryMu.Unlock()
}

func (s *Service) clearRetry(id string) {
	s.retryMu.Lock()
	delete(s.nextRetry, id)
	s.retryMu.Unlock()
}
