package candidate

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

type SummaryRepo interface {
	// Upsert writes row keyed by candidate_id and then runs within inside the
	// same transaction. If within fails the write is rolled back. The
	// returned row carries the persisted id and created_at.
	Upsert(dbc dbctx.Context, row *types.StructuredSummary, within func(tx *gorm.DB) error) (*types.StructuredSummary, error)
	GetByCandidateID(dbc dbctx.Context, candidateID string) (*types.StructuredSummary, bool, error)
	// ListAfter pages through summaries in candidate_id order, returning at
	// most limit rows whose candidate_id sorts after afterCandidateID.
	ListAfter(dbc dbctx.Context, afterCandidateID string, limit int) ([]*types.StructuredSummary, error)
}

type summaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSummaryRepo(db *gorm.DB, baseLog *logger.Logger) SummaryRepo {
	return &summaryRepo{
		db:  db,
		log: baseLog.With("repo", "SummaryRepo"),
	}
}

var overwriteColumns = []string{
	"model",
	"structured",
	"embedding_text",
	"embedding",
	"embedding_dim",
	"updated_at",
}

func (r *summaryRepo) Upsert(dbc dbctx.Context, row *types.StructuredSummary, within func(tx *gorm.DB) error) (*types.StructuredSummary, error) {
	if row == nil || strings.TrimSpace(row.CandidateID) == "" {
		return nil, fmt.Errorf("summary upsert: candidate id required")
	}
	var out types.StructuredSummary
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns(overwriteColumns),
		}).Create(row).Error; err != nil {
			return fmt.Errorf("upsert candidate_summary: %w", err)
		}
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		return tx.Where("candidate_id = ?", row.CandidateID).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *summaryRepo) GetByCandidateID(dbc dbctx.Context, candidateID string) (*types.StructuredSummary, bool, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, false, nil
	}
	var row types.StructuredSummary
	err := dbc.DB(r.db).Where("candidate_id = ?", candidateID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

func (r *summaryRepo) ListAfter(dbc dbctx.Context, afterCandidateID string, limit int) ([]*types.StructuredSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*types.StructuredSummary
	err := dbc.DB(r.db).
		Where("candidate_id > ?", afterCandidateID).
		Order("candidate_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list candidate_summary: %w", err)
	}
	return rows, nil
}
