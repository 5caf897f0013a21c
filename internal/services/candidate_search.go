package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/openai"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
)

type CandidateMatch struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
}

type CandidateSearch interface {
	// Search ranks indexed candidates against query. When candidateIDs is
	// non-empty only those candidates are considered.
	Search(ctx context.Context, query string, candidateIDs ...string) ([]CandidateMatch, error)
}

type CandidateSearchConfig struct {
	TopK         int
	PoolSize     int
	EmbeddingDim int
}

type candidateSearch struct {
	log     *logger.Logger
	ai      openai.Client
	vectors vectorstore.VectorStore
	cfg     CandidateSearchConfig
}

func NewCandidateSearch(baseLog *logger.Logger, ai openai.Client, vectors vectorstore.VectorStore, cfg CandidateSearchConfig) CandidateSearch {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 100
	}
	if cfg.PoolSize < cfg.TopK {
		cfg.PoolSize = cfg.TopK
	}
	return &candidateSearch{
		log:     baseLog.With("service", "CandidateSearch"),
		ai:      ai,
		vectors: vectors,
		cfg:     cfg,
	}
}

func (s *candidateSearch) Search(ctx context.Context, query string, candidateIDs ...string) (out []CandidateMatch, err error) {
	const op = "search candidates"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.BadRequest("invalid_query", "query is required")
	}

	ctx, span := observability.StartSpan(ctx, "candidate.search",
		attribute.Int("search.top_k", s.cfg.TopK),
		attribute.Int("search.pool", s.cfg.PoolSize),
		attribute.Int("search.shortlist", len(candidateIDs)),
	)
	defer func() { observability.EndSpan(span, err) }()

	vecs, err := s.ai.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errors.New("search candidates: empty query embedding")
	}
	q := vecs[0]
	if s.cfg.EmbeddingDim > 0 && len(q) != s.cfg.EmbeddingDim {
		return nil, newError(ErrSearchMisconfiguration, op, vectorstore.DimensionError("query", s.cfg.EmbeddingDim, len(q)))
	}

	matches, err := s.vectors.QueryMatches(ctx, CandidateNamespace, q, s.cfg.TopK, s.cfg.PoolSize, shortlistFilter(candidateIDs))
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			return nil, newError(ErrSearchMisconfiguration, op, err)
		}
		return nil, err
	}

	vectorstore.SortMatches(matches)
	if len(matches) > s.cfg.TopK {
		matches = matches[:s.cfg.TopK]
	}
	out = make([]CandidateMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, CandidateMatch{CandidateID: m.ID, Score: m.Score})
	}
	span.SetAttributes(attribute.Int("search.results", len(out)))
	s.log.Debug("candidate search", "results", len(out))
	return out, nil
}

// shortlistFilter restricts a query to the given candidates through the
// candidate_id metadata written with every summary vector. Blank ids are
// dropped; an empty shortlist means no restriction.
func shortlistFilter(candidateIDs []string) map[string]any {
	ids := make([]string, 0, len(candidateIDs))
	seen := map[string]bool{}
	for _, id := range candidateIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	return map[string]any{"candidate_id": ids}
}
