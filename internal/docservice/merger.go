package docservice

import (
	"errors"
	"log/slog"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/vecindex"
)

// Match is one merged query result: vector-index ranking joined with
// the current metadata-store record.
type Match struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata"`
	SimilarityScore float32        `json:"similarity_score"`
}

// mergeHits joins ranked hits with a metadata lookup per id. The
// current metadata supersedes the stale vector-side snapshot; hits
// whose row is gone (legacy entries never given structured metadata)
// get an empty metadata object instead of failing the batch; rows
// awaiting physical deletion are dropped. Ranking order is preserved
// exactly as the index returned it.
func (s *Service) mergeHits(hits []vecindex.Hit) []Match {
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		m := Match{
			ID:              h.ID,
			Content:         h.Content,
			Metadata:        map[string]any{},
			SimilarityScore: h.Score,
		}

		doc, err := s.meta.Get(h.ID)
		switch {
		case err == nil:
			if doc.Status == models.StatusPendingDeletion {
				continue
			}
			m.Content = doc.Content
			m.Metadata = doc.Metadata
		case errors.Is(err, apperr.ErrNotFound):
			// Legacy vector entry without a metadata row.
		default:
			s.logger.Warn("metadata lookup failed during merge, using snapshot",
				slog.String("id", h.ID), slog.String("error", err.Error()))
			if h.Metadata != nil {
				m.Metadata = h.Metadata
			}
		}

		matches = append(matches, m)
	}
	return matches
}
