package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	"github.com/yungbote/candidate-intel-backend/internal/domain/candidate"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/services/prompts"
)

const generatedSummary = `{
  "professionalSummary": "Backend engineer focused on data systems.",
  "yearsOfExperience": 6,
  "coreSkills": ["Go", "Postgres"],
  "workExperience": [],
  "projects": [],
  "education": null
}`

type recordingProjector struct {
	calls int
	err   error
}

func (p *recordingProjector) ProjectCandidate(ctx context.Context, candidateID string, s *candidate.Summary) error {
	p.calls++
	return p.err
}

func TestSummaryGeneratorPersistsRowAndVector(t *testing.T) {
	r := newTestRepos(t)
	vs := mustMemoryStore(t, 3)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	proj := &recordingProjector{}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), proj, SummaryGeneratorConfig{EmbeddingDim: 3})

	row, err := gen.Generate(context.Background(), "ada@example.com", map[string]any{"name": "Ada", "skills": []string{"Go"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if row.CandidateID != "ada@example.com" || row.Model != "model-test" || row.EmbeddingDim != 3 {
		t.Fatalf("row: got=%+v", row)
	}
	wantText := "Candidate Overview:\n\nBackend engineer focused on data systems.\n\nYears of Experience: 6\n\nCore Skills: Go, Postgres\n\n"
	if row.EmbeddingText != wantText || ai.embedIn[0] != wantText {
		t.Fatalf("embedding text: want=%q got=%q", wantText, row.EmbeddingText)
	}
	if !strings.Contains(ai.lastUser, `"name":"Ada"`) {
		t.Fatalf("user prompt should carry the serialized profile, got=%q", ai.lastUser)
	}
	if !strings.Contains(ai.lastSystem, "DO NOT hallucinate") {
		t.Fatalf("system prompt: got=%q", ai.lastSystem)
	}
	if vs.Len(CandidateNamespace) != 1 {
		t.Fatalf("vector index: want=1 got=%d", vs.Len(CandidateNamespace))
	}
	if proj.calls != 1 {
		t.Fatalf("projector calls: want=1 got=%d", proj.calls)
	}
}

func TestSummaryGeneratorRejectsMalformedOutput(t *testing.T) {
	r := newTestRepos(t)
	vs := mustMemoryStore(t, 3)
	ai := &fakeAI{
		jsonOut: json.RawMessage(`{"professionalSummary":"x","extra":true}`),
		embed:   constEmbed([]float32{1, 0, 0}),
	}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})

	_, err := gen.Generate(context.Background(), "ada@example.com", map[string]any{})
	if !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("want ErrGenerationFailure got=%v", err)
	}
	if _, found, _ := r.summaries.GetByCandidateID(dbctx.Context{Ctx: context.Background()}, "ada@example.com"); found {
		t.Fatalf("malformed output must not be persisted")
	}
	if len(ai.embedIn) != 0 {
		t.Fatalf("embed must not run after a parse failure")
	}
}

func TestSummaryGeneratorProviderFailure(t *testing.T) {
	r := newTestRepos(t)
	ai := &fakeAI{jsonErr: errors.New("503")}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, mustMemoryStore(t, 3), prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})
	if _, err := gen.Generate(context.Background(), "ada", map[string]any{}); !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("want ErrGenerationFailure got=%v", err)
	}
}

func TestSummaryGeneratorDimensionMismatch(t *testing.T) {
	r := newTestRepos(t)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0})}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, mustMemoryStore(t, 3), prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})
	if _, err := gen.Generate(context.Background(), "ada", map[string]any{}); !errors.Is(err, ErrSearchMisconfiguration) {
		t.Fatalf("want ErrSearchMisconfiguration got=%v", err)
	}
}

func TestSummaryGeneratorIndexFailureRollsBack(t *testing.T) {
	r := newTestRepos(t)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	vs := &failingVectors{VectorStore: mustMemoryStore(t, 3), err: errors.New("index unavailable")}
	proj := &recordingProjector{}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), proj, SummaryGeneratorConfig{EmbeddingDim: 3})

	if _, err := gen.Generate(context.Background(), "ada", map[string]any{}); !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("want ErrGenerationFailure got=%v", err)
	}
	if _, found, _ := r.summaries.GetByCandidateID(dbctx.Context{Ctx: context.Background()}, "ada"); found {
		t.Fatalf("row must be rolled back when the index write fails")
	}
	if proj.calls != 0 {
		t.Fatalf("projector must not run on failure")
	}
}

func TestSummaryGeneratorProjectionFailureIsNotFatal(t *testing.T) {
	r := newTestRepos(t)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	proj := &recordingProjector{err: errors.New("neo4j down")}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, mustMemoryStore(t, 3), prompts.MustDefault(), proj, SummaryGeneratorConfig{EmbeddingDim: 3})
	if _, err := gen.Generate(context.Background(), "ada", map[string]any{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestSummaryGeneratorOverwriteKeepsIdentity(t *testing.T) {
	r := newTestRepos(t)
	vs := mustMemoryStore(t, 3)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})

	first, err := gen.Generate(context.Background(), "ada", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	ai.jsonOut = json.RawMessage(strings.Replace(generatedSummary, `"yearsOfExperience": 6`, `"yearsOfExperience": 7`, 1))
	second, err := gen.Generate(context.Background(), "ada", map[string]any{"v": 2})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("id: want=%s got=%s", first.ID, second.ID)
	}
	if !strings.Contains(second.EmbeddingText, "Years of Experience: 7") {
		t.Fatalf("overwrite: got=%q", second.EmbeddingText)
	}
	if vs.Len(CandidateNamespace) != 1 {
		t.Fatalf("vector index: want=1 got=%d", vs.Len(CandidateNamespace))
	}
}

func TestSummaryGeneratorCommitFailureDropsNewVector(t *testing.T) {
	r := newTestRepos(t)
	vs := mustMemoryStore(t, 3)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	repo := &commitFailingRepo{SummaryRepo: r.summaries, err: errors.New("commit failed")}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, repo, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})

	if _, err := gen.Generate(context.Background(), "ada", map[string]any{}); !errors.Is(err, ErrGenerationFailure) {
		t.Fatalf("want ErrGenerationFailure got=%v", err)
	}
	if _, found, _ := r.summaries.GetByCandidateID(dbctx.Context{Ctx: context.Background()}, "ada"); found {
		t.Fatalf("row must be rolled back")
	}
	if vs.Len(CandidateNamespace) != 0 {
		t.Fatalf("index must not keep a vector for an uncommitted row: got=%d", vs.Len(CandidateNamespace))
	}
}

func TestSummaryGeneratorCommitFailureRestoresPreviousVector(t *testing.T) {
	r := newTestRepos(t)
	vs := mustMemoryStore(t, 3)
	ai := &fakeAI{jsonOut: json.RawMessage(generatedSummary), embed: constEmbed([]float32{1, 0, 0})}
	ok := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})
	if _, err := ok.Generate(context.Background(), "ada", map[string]any{}); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	ai.embed = constEmbed([]float32{0, 1, 0})
	repo := &commitFailingRepo{SummaryRepo: r.summaries, err: errors.New("commit failed")}
	failing := NewSummaryGenerator(testutil.Logger(t), ai, repo, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: 3})
	if _, err := failing.Generate(context.Background(), "ada", map[string]any{}); err == nil {
		t.Fatalf("second Generate should fail")
	}

	matches, err := vs.QueryMatches(context.Background(), CandidateNamespace, []float32{1, 0, 0}, 1, 10, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "ada" || matches[0].Score < 0.999 {
		t.Fatalf("index should hold the committed vector again, got=%v", matches)
	}
}

var runPattern = regexp.MustCompile(`run (\d+)`)

// runVector maps the text of run n to the unit vector e_n, so the stored
// vector identifies which generation's text produced it.
func runVector(text string, dim int) ([]float32, error) {
	m := runPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("no run marker in %q", text)
	}
	n, _ := strconv.Atoi(m[1])
	if n <= 0 || n >= dim {
		return nil, fmt.Errorf("run %d out of range", n)
	}
	vec := make([]float32, dim)
	vec[n] = 1
	return vec, nil
}

func TestSummaryGeneratorConcurrentGenerationsLeaveOneConsistentRow(t *testing.T) {
	const runs = 16
	const dim = runs + 1
	r := newTestRepos(t)
	vs := mustMemoryStore(t, dim)
	ai := &fakeAI{
		jsonFn: func(call int) json.RawMessage {
			return json.RawMessage(fmt.Sprintf(`{
  "professionalSummary": "run %d",
  "yearsOfExperience": %d,
  "coreSkills": ["s%d"],
  "workExperience": [],
  "projects": [],
  "education": null
}`, call, call, call))
		},
		embed: func(inputs []string) ([][]float32, error) {
			out := make([][]float32, len(inputs))
			for i, in := range inputs {
				vec, err := runVector(in, dim)
				if err != nil {
					return nil, err
				}
				out[i] = vec
			}
			return out, nil
		},
	}
	gen := NewSummaryGenerator(testutil.Logger(t), ai, r.summaries, vs, prompts.MustDefault(), nil, SummaryGeneratorConfig{EmbeddingDim: dim})

	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := gen.Generate(context.Background(), "ada", map[string]any{"attempt": i}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Generate: %v", err)
	}

	row, found, err := r.summaries.GetByCandidateID(dbctx.Context{Ctx: context.Background()}, "ada")
	if err != nil || !found {
		t.Fatalf("row: found=%v err=%v", found, err)
	}
	s, err := row.Summary()
	if err != nil {
		t.Fatalf("Summary(): %v", err)
	}
	m := runPattern.FindStringSubmatch(candidate.Str(s.ProfessionalSummary))
	if m == nil {
		t.Fatalf("professionalSummary: got=%v", s.ProfessionalSummary)
	}
	n, _ := strconv.Atoi(m[1])
	if s.YearsOfExperience == nil || int(*s.YearsOfExperience) != n {
		t.Fatalf("yearsOfExperience: want=%d got=%v", n, s.YearsOfExperience)
	}
	if len(s.CoreSkills) != 1 || s.CoreSkills[0] != fmt.Sprintf("s%d", n) {
		t.Fatalf("coreSkills: want=[s%d] got=%v", n, s.CoreSkills)
	}
	if row.EmbeddingText != candidate.EmbeddingText(s) {
		t.Fatalf("embedding_text from another run: summary=run %d text=%q", n, row.EmbeddingText)
	}

	if vs.Len(CandidateNamespace) != 1 {
		t.Fatalf("vector index: want=1 got=%d", vs.Len(CandidateNamespace))
	}
	want, _ := runVector(row.EmbeddingText, dim)
	matches, err := vs.QueryMatches(context.Background(), CandidateNamespace, want, 1, 10, nil)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "ada" || matches[0].Score < 0.999 {
		t.Fatalf("index vector does not match run %d: got=%v", n, matches)
	}
}
