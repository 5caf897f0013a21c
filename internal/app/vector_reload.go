package app

import (
	"context"
	"fmt"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

const reloadBatchSize = 500

// reloadMemoryIndex rebuilds the in-process index from the persisted
// embeddings in candidate_summary. A stored embedding of another dimension
// fails startup as a dimension_mismatch bootstrap error.
func reloadMemoryIndex(ctx context.Context, log *logger.Logger, vs vectorstore.VectorStore, summaries repos.SummaryRepo, dim int) error {
	provider := string(VectorProviderMemory)
	dbc := dbctx.Context{Ctx: ctx}
	after := ""
	total := 0
	for {
		rows, err := summaries.ListAfter(dbc, after, reloadBatchSize)
		if err != nil {
			return fmt.Errorf("reload memory index: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		batch := make([]vectorstore.Vector, 0, len(rows))
		for _, row := range rows {
			vec, err := row.Vector()
			if err != nil {
				return fmt.Errorf("reload memory index: candidate %s: %w", row.CandidateID, err)
			}
			if row.EmbeddingDim != dim || len(vec) != dim {
				return &VectorProviderBootstrapError{
					Code:     VectorProviderBootstrapErrorDimensionMismatch,
					Provider: provider,
					Cause: fmt.Errorf("%w: candidate %s: %w", services.ErrSearchMisconfiguration, row.CandidateID,
						vectorstore.DimensionError("reload memory index", dim, row.EmbeddingDim)),
				}
			}
			batch = append(batch, vectorstore.Vector{
				ID:       row.CandidateID,
				Values:   vec,
				Metadata: map[string]any{"candidate_id": row.CandidateID},
			})
		}
		if err := vs.Upsert(ctx, services.CandidateNamespace, batch); err != nil {
			return fmt.Errorf("reload memory index: %w", err)
		}
		total += len(batch)
		after = rows[len(rows)-1].CandidateID
		if len(rows) < reloadBatchSize {
			break
		}
	}
	log.Info("Memory vector index reloaded", "namespace", services.CandidateNamespace, "vectors", total)
	return nil
}
