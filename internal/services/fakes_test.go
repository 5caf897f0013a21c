package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos"
	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/platform/openai"
	"github.com/yungbote/candidate-intel-backend/internal/platform/vectorstore"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
)

type fakeAI struct {
	mu sync.Mutex

	jsonOut json.RawMessage
	jsonErr error
	// jsonFn, when set, overrides jsonOut with a per-call response.
	jsonFn func(call int) json.RawMessage

	embed     func(inputs []string) ([][]float32, error)
	embedIn   []string
	deltas    []string
	streamErr error

	generateCalls int
	streamCalls   int
	lastMessages  []openai.Message
	lastSystem    string
	lastUser      string
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedIn = append(f.embedIn, inputs...)
	f.mu.Unlock()
	if f.embed == nil {
		return nil, errors.New("embed not configured")
	}
	return f.embed(inputs)
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastSystem = system
	f.lastUser = user
	if f.jsonFn != nil {
		return f.jsonFn(f.generateCalls), f.jsonErr
	}
	return f.jsonOut, f.jsonErr
}

func (f *fakeAI) StreamChat(ctx context.Context, messages []openai.Message, onDelta func(string) error) (string, error) {
	f.mu.Lock()
	f.streamCalls++
	f.lastMessages = append([]openai.Message(nil), messages...)
	f.mu.Unlock()
	full := ""
	for _, d := range f.deltas {
		if err := ctx.Err(); err != nil {
			return full, err
		}
		if err := onDelta(d); err != nil {
			return full, err
		}
		full += d
	}
	if f.streamErr != nil {
		return full, f.streamErr
	}
	return full, nil
}

func (f *fakeAI) EmbedModel() string { return "embed-test" }
func (f *fakeAI) Model() string      { return "model-test" }

// constEmbed returns the same vector for every input.
func constEmbed(vec []float32) func([]string) ([][]float32, error) {
	return func(inputs []string) ([][]float32, error) {
		out := make([][]float32, len(inputs))
		for i := range inputs {
			out[i] = append([]float32(nil), vec...)
		}
		return out, nil
	}
}

type failingVectors struct {
	vectorstore.VectorStore
	err error
}

func (f *failingVectors) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	return f.err
}

// commitFailingRepo runs the caller's in-transaction hook and then fails the
// transaction, leaving any index write made by the hook behind.
type commitFailingRepo struct {
	repos.SummaryRepo
	err error
}

func (r *commitFailingRepo) Upsert(dbc dbctx.Context, row *types.StructuredSummary, within func(tx *gorm.DB) error) (*types.StructuredSummary, error) {
	return r.SummaryRepo.Upsert(dbc, row, func(tx *gorm.DB) error {
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		return r.err
	})
}

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (e *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
}

type testRepos struct {
	summaries repos.SummaryRepo
	messages  repos.ChatMessageRepo
	jobs      repos.JobRunRepo
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return testRepos{
		summaries: repos.NewSummaryRepo(db, log),
		messages:  repos.NewChatMessageRepo(db, log),
		jobs:      repos.NewJobRunRepo(db, log),
	}
}

func mustMemoryStore(t *testing.T, dim int) *vectorstore.MemoryStore {
	t.Helper()
	vs, err := vectorstore.NewMemoryStore(dim)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return vs
}
