package services

import (
	"context"
	"testing"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
)

func TestGetSummary(t *testing.T) {
	r := newTestRepos(t)
	seedSummary(t, r, "ada")
	svc := NewCandidateSummaries(testutil.Logger(t), r.summaries)

	view, err := svc.GetSummary(context.Background(), " ada ")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if view.CandidateID != "ada" || view.EmbeddingDim != 2 || view.Summary == nil {
		t.Fatalf("view: got=%+v", view)
	}
	if view.Summary.ProfessionalSummary == nil {
		t.Fatalf("summary should be decoded")
	}
}

func TestGetSummaryErrors(t *testing.T) {
	r := newTestRepos(t)
	svc := NewCandidateSummaries(testutil.Logger(t), r.summaries)

	_, err := svc.GetSummary(context.Background(), "nobody")
	if ae := apierr.As(err); ae == nil || ae.Status != 404 {
		t.Fatalf("missing: want 404 got=%v", err)
	}
	_, err = svc.GetSummary(context.Background(), "")
	if ae := apierr.As(err); ae == nil || ae.Status != 400 {
		t.Fatalf("blank: want 400 got=%v", err)
	}
}
