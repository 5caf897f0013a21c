package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/domain/chat"
	"github.com/yungbote/candidate-intel-backend/internal/observability"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/platform/openai"
	"github.com/yungbote/candidate-intel-backend/internal/services/prompts"
)

type ConverseRequest struct {
	RecruiterID string
	CandidateID string
	Question    string
}

type RecruiterChat interface {
	// Converse streams a grounded answer through onFragment and returns the
	// persisted assistant turn. Nothing but the user turn is persisted when
	// the stream does not complete.
	Converse(ctx context.Context, req ConverseRequest, onFragment func(fragment string) error) (*types.ChatMessage, error)
	History(ctx context.Context, recruiterID, candidateID string) ([]*types.ChatMessage, error)
}

type RecruiterChatConfig struct {
	HistoryWindow int
}

type recruiterChat struct {
	log       *logger.Logger
	ai        openai.Client
	summaries repos.SummaryRepo
	messages  repos.ChatMessageRepo
	prompts   *prompts.Catalog
	cfg       RecruiterChatConfig
}

func NewRecruiterChat(
	baseLog *logger.Logger,
	ai openai.Client,
	summaries repos.SummaryRepo,
	messages repos.ChatMessageRepo,
	catalog *prompts.Catalog,
	cfg RecruiterChatConfig,
) RecruiterChat {
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = 0
	}
	return &recruiterChat{
		log:       baseLog.With("service", "RecruiterChat"),
		ai:        ai,
		summaries: summaries,
		messages:  messages,
		prompts:   catalog,
		cfg:       cfg,
	}
}

func (s *recruiterChat) Converse(ctx context.Context, req ConverseRequest, onFragment func(fragment string) error) (out *types.ChatMessage, err error) {
	const op = "converse"
	req.RecruiterID = strings.TrimSpace(req.RecruiterID)
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	question := strings.TrimSpace(req.Question)
	if req.RecruiterID == "" || req.CandidateID == "" || question == "" {
		return nil, apierr.BadRequest("invalid_request", "recruiter, candidate and question are required")
	}
	if onFragment == nil {
		onFragment = func(string) error { return nil }
	}

	ctx, span := observability.StartSpan(ctx, "chat.converse")
	start := time.Now()
	outcome := "failed"
	defer func() {
		observability.EndSpan(span, err)
		observability.Current().ObserveChatStream(outcome)
	}()
	dbc := dbctx.Context{Ctx: ctx}

	userTurn, err := s.messages.Append(dbc, &types.ChatMessage{
		RecruiterID: req.RecruiterID,
		CandidateID: req.CandidateID,
		Role:        chat.RoleUser,
		Content:     question,
	})
	if err != nil {
		return nil, err
	}

	row, found, err := s.summaries.GetByCandidateID(dbc, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if !found {
		outcome = "grounding_missing"
		return nil, newError(ErrGroundingMissing, op, nil)
	}

	history, err := s.messages.ListRecent(dbc, req.RecruiterID, req.CandidateID, s.cfg.HistoryWindow, userTurn.ID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.buildPrompt(row, history, question)
	if err != nil {
		return nil, err
	}

	var full strings.Builder
	_, err = s.ai.StreamChat(ctx, msgs, func(delta string) error {
		if delta == "" {
			return nil
		}
		if ferr := onFragment(delta); ferr != nil {
			return ferr
		}
		full.WriteString(delta)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		s.log.Warn("chat stream failed",
			"recruiter_id", req.RecruiterID,
			"candidate_id", req.CandidateID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, newError(ErrStreamFailure, op, err)
	}
	if cerr := ctx.Err(); cerr != nil {
		outcome = "cancelled"
		return nil, newError(ErrStreamFailure, op, cerr)
	}

	answer, err := s.messages.Append(dbc, &types.ChatMessage{
		RecruiterID: req.RecruiterID,
		CandidateID: req.CandidateID,
		Role:        chat.RoleAssistant,
		Content:     full.String(),
	})
	if err != nil {
		return nil, err
	}
	outcome = "completed"
	s.log.Info("chat stream completed",
		"recruiter_id", req.RecruiterID,
		"candidate_id", req.CandidateID,
		"history", len(history),
		"response_len", full.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

func (s *recruiterChat) buildPrompt(row *types.StructuredSummary, history []*types.ChatMessage, question string) ([]openai.Message, error) {
	const op = "build prompt"
	summary, err := row.Summary()
	if err != nil {
		return nil, newError(ErrSerializationFailure, op, err)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, newError(ErrSerializationFailure, op, err)
	}

	msgs := make([]openai.Message, 0, len(history)+3)
	msgs = append(msgs,
		openai.Message{Role: "system", Content: s.prompts.Get(prompts.ChatSystem)},
		openai.Message{Role: "system", Content: "Candidate Data:\n" + string(data)},
	)
	for _, m := range history {
		if m == nil {
			continue
		}
		role := chat.RoleUser
		if m.Role == chat.RoleAssistant {
			role = chat.RoleAssistant
		}
		msgs = append(msgs, openai.Message{Role: string(role), Content: m.Content})
	}
	msgs = append(msgs, openai.Message{Role: string(chat.RoleUser), Content: question})
	return msgs, nil
}

func (s *recruiterChat) History(ctx context.Context, recruiterID, candidateID string) ([]*types.ChatMessage, error) {
	recruiterID = strings.TrimSpace(recruiterID)
	candidateID = strings.TrimSpace(candidateID)
	if recruiterID == "" || candidateID == "" {
		return nil, apierr.BadRequest("invalid_request", "candidateId is required")
	}
	out, err := s.messages.ListAll(dbctx.Context{Ctx: ctx}, recruiterID, candidateID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*types.ChatMessage{}
	}
	return out, nil
}
