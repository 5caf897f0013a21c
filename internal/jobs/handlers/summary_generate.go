package handlers

import (
	"fmt"
	"strings"

	"github.com/yungbote/candidate-intel-backend/internal/jobs/runtime"
	"github.com/yungbote/candidate-intel-backend/internal/platform/logger"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

const SummaryGenerateType = "summary_generate"

// SummaryGenerate turns a saved profile into a stored, indexed summary.
// Payload: {"profile": {...}}; the candidate is the job's entity id.
type SummaryGenerate struct {
	log *logger.Logger
	gen services.SummaryGenerator
}

func NewSummaryGenerate(baseLog *logger.Logger, gen services.SummaryGenerator) *SummaryGenerate {
	return &SummaryGenerate{log: baseLog.With("job", SummaryGenerateType), gen: gen}
}

func (h *SummaryGenerate) Type() string { return SummaryGenerateType }

func (h *SummaryGenerate) Run(jc *runtime.Context) error {
	candidateID := ""
	if jc.Job != nil {
		candidateID = strings.TrimSpace(jc.Job.EntityID)
	}
	if candidateID == "" {
		err := fmt.Errorf("summary_generate: missing candidate id")
		jc.Fail("validate", err)
		return err
	}
	profile, ok := jc.PayloadObject("profile")
	if !ok {
		err := fmt.Errorf("summary_generate: payload.profile must be an object")
		jc.Fail("validate", err)
		return err
	}

	jc.Progress("generating", 10, "Generating summary")
	row, err := h.gen.Generate(jc.Ctx, candidateID, profile)
	if err != nil {
		jc.Fail("generate", err)
		return err
	}
	jc.Succeed("done", map[string]any{
		"candidate_id":  row.CandidateID,
		"summary_id":    row.ID.String(),
		"embedding_dim": row.EmbeddingDim,
	})
	return nil
}
