package chat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
)

type MessageRepo interface {
	// Append persists msg as the next turn of its (recruiter, candidate) pair.
	Append(dbc dbctx.Context, msg *types.ChatMessage) (*types.ChatMessage, error)
	// ListRecent returns up to limit turns of the pair in chronological order,
	// taken from the newest end and skipping excludeID.
	ListRecent(dbc dbctx.Context, recruiterID, candidateID string, limit int, excludeID uuid.UUID) ([]*types.ChatMessage, error)
	ListAll(dbc dbctx.Context, recruiterID, candidateID string) ([]*types.ChatMessage, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{
		db:  db,
		log: baseLog.With("repo", "ChatMessageRepo"),
	}
}

func (r *messageRepo) Append(dbc dbctx.Context, msg *types.ChatMessage) (*types.ChatMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("chat append: nil message")
	}
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			key := msg.RecruiterID + "\x00" + msg.CandidateID
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
				return fmt.Errorf("lock chat pair: %w", err)
			}
		}
		var maxSeq int64
		if err := tx.Model(&types.ChatMessage{}).
			Where("recruiter_id = ? AND candidate_id = ?", msg.RecruiterID, msg.CandidateID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		msg.Seq = maxSeq + 1
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, recruiterID, candidateID string, limit int, excludeID uuid.UUID) ([]*types.ChatMessage, error) {
	out := []*types.ChatMessage{}
	if limit <= 0 || strings.TrimSpace(recruiterID) == "" || strings.TrimSpace(candidateID) == "" {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("recruiter_id = ? AND candidate_id = ?", recruiterID, candidateID)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Order("created_at DESC").Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) ListAll(dbc dbctx.Context, recruiterID, candidateID string) ([]*types.ChatMessage, error) {
	out := []*types.ChatMessage{}
	if strings.TrimSpace(recruiterID) == "" || strings.TrimSpace(candidateID) == "" {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("recruiter_id = ? AND candidate_id = ?", recruiterID, candidateID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
