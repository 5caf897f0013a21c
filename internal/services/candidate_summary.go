package services

import (
	"context"
	"strings"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	"github.com/yungbote/candidate-intel-backend/internal/domain/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

// SummaryView is the recruiter-facing projection of a stored summary. The
// embedding itself is never exposed.
type SummaryView struct {
	CandidateID  string             `json:"candidate_id"`
	Model        string             `json:"model"`
	Summary      *candidate.Summary `json:"summary"`
	EmbeddingDim int                `json:"embedding_dim"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type CandidateSummaries interface {
	GetSummary(ctx context.Context, candidateID string) (*SummaryView, error)
}

type candidateSummaries struct {
	log  *logger.Logger
	repo repos.SummaryRepo
}

func NewCandidateSummaries(baseLog *logger.Logger, repo repos.SummaryRepo) CandidateSummaries {
	return &candidateSummaries{log: baseLog.With("service", "CandidateSummaries"), repo: repo}
}

func (s *candidateSummaries) GetSummary(ctx context.Context, candidateID string) (*SummaryView, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, apierr.BadRequest("invalid_request", "candidateId is required")
	}
	row, found, err := s.repo.GetByCandidateID(dbctx.Context{Ctx: ctx}, candidateID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierr.NotFound("not_found", "no summary for candidate")
	}
	summary, err := row.Summary()
	if err != nil {
		return nil, newError(ErrSerializationFailure, "get summary", err)
	}
	return &SummaryView{
		CandidateID:  row.CandidateID,
		Model:        row.Model,
		Summary:      summary,
		EmbeddingDim: row.EmbeddingDim,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}
