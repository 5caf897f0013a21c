package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/domain/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/openai"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
	"github.com/yungbote/candidate-intel-backend/internal/services/prompts"
)

// CandidateNamespace is the vector index namespace holding summary embeddings.
const CandidateNamespace = "candidate_summary"

type SummaryGenerator interface {
	Generate(ctx context.Context, candidateID string, rawProfile map[string]any) (*types.StructuredSummary, error)
}

// SkillProjector receives every successfully persisted summary. Failures are
// logged and never undo the generation.
type SkillProjector interface {
	ProjectCandidate(ctx context.Context, candidateID string, s *candidate.Summary) error
}

type SummaryGeneratorConfig struct {
	EmbeddingDim int
}

type summaryGenerator struct {
	log     *logger.Logger
	ai      openai.Client
	repo    repos.SummaryRepo
	vectors vectorstore.VectorStore
	prompts *prompts.Catalog
	skills  SkillProjector
	cfg     SummaryGeneratorConfig
}

func NewSummaryGenerator(
	baseLog *logger.Logger,
	ai openai.Client,
	repo repos.SummaryRepo,
	vectors vectorstore.VectorStore,
	catalog *prompts.Catalog,
	skills SkillProjector,
	cfg SummaryGeneratorConfig,
) SummaryGenerator {
	return &summaryGenerator{
		log:     baseLog.With("service", "SummaryGenerator"),
		ai:      ai,
		repo:    repo,
		vectors: vectors,
		prompts: catalog,
		skills:  skills,
		cfg:     cfg,
	}
}

func (s *summaryGenerator) Generate(ctx context.Context, candidateID string, rawProfile map[string]any) (out *types.StructuredSummary, err error) {
	const op = "generate summary"
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, fmt.Errorf("%s: candidate id required", op)
	}

	ctx, span := observability.StartSpan(ctx, "summary.generate")
	defer func() { observability.EndSpan(span, err) }()
	start := time.Now()

	payload, err := json.Marshal(rawProfile)
	if err != nil {
		return nil, newError(ErrSerializationFailure, op, err)
	}

	user := s.prompts.Get(prompts.SummaryUser) + "\n\n" + string(payload)
	raw, err := s.ai.GenerateJSON(ctx, s.prompts.Get(prompts.SummarySystem), user, candidate.SchemaName, candidate.JSONSchema())
	if err != nil {
		return nil, newError(ErrGenerationFailure, op, err)
	}
	summary, err := candidate.ParseSummary(raw)
	if err != nil {
		return nil, newError(ErrGenerationFailure, op, err)
	}

	text := candidate.EmbeddingText(summary)
	vecs, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return nil, newError(ErrGenerationFailure, op, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, newError(ErrGenerationFailure, op, errors.New("empty embedding"))
	}
	vec := vecs[0]
	if s.cfg.EmbeddingDim > 0 && len(vec) != s.cfg.EmbeddingDim {
		return nil, newError(ErrSearchMisconfiguration, op, vectorstore.DimensionError("embed", s.cfg.EmbeddingDim, len(vec)))
	}
	span.SetAttributes(attribute.Int("embedding.dim", len(vec)))

	row, err := candidate.NewStructuredSummary(candidateID, s.ai.Model(), summary, text, vec)
	if err != nil {
		return nil, newError(ErrSerializationFailure, op, err)
	}

	indexed := false
	saved, err := s.repo.Upsert(dbctx.Context{Ctx: ctx}, row, func(tx *gorm.DB) error {
		if err := s.vectors.Upsert(ctx, CandidateNamespace, []vectorstore.Vector{candidateVector(candidateID, vec)}); err != nil {
			return err
		}
		indexed = true
		return nil
	})
	if err != nil {
		if indexed {
			s.restoreIndex(ctx, candidateID)
		}
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, newError(ErrSearchMisconfiguration, op, err)
		}
		return nil, newError(ErrGenerationFailure, op, err)
	}

	if s.skills != nil {
		if perr := s.skills.ProjectCandidate(ctx, candidateID, summary); perr != nil {
			s.log.Warn("skill graph projection failed (continuing)", "candidate_id", candidateID, "error", perr)
		}
	}

	s.log.Info("summary generated",
		"candidate_id", candidateID,
		"model", saved.Model,
		"skills", len(summary.CoreSkills),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return saved, nil
}

func candidateVector(candidateID string, vec []float32) vectorstore.Vector {
	return vectorstore.Vector{
		ID:       candidateID,
		Values:   vec,
		Metadata: map[string]any{"candidate_id": candidateID},
	}
}

// restoreIndex puts the index entry for candidateID back in line with the
// committed row after the row transaction failed past the index write.
func (s *summaryGenerator) restoreIndex(ctx context.Context, candidateID string) {
	ctx = context.WithoutCancel(ctx)
	prev, found, err := s.repo.GetByCandidateID(dbctx.Context{Ctx: ctx}, candidateID)
	if err != nil {
		s.log.Warn("index restore: load committed summary failed", "candidate_id", candidateID, "error", err)
		return
	}
	if !found {
		err = s.vectors.DeleteIDs(ctx, CandidateNamespace, []string{candidateID})
	} else {
		var vec []float32
		if vec, err = prev.Vector(); err == nil {
			err = s.vectors.Upsert(ctx, CandidateNamespace, []vectorstore.Vector{candidateVector(candidateID, vec)})
		}
	}
	if err != nil {
		s.log.Warn("index restore failed", "candidate_id", candidateID, "error", err)
	}
}
