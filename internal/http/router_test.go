package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/candidate-intel-backend/internal/data/repos/testutil"
	types "github.com/yungbote/candidate-intel-backend/internal/domain"
	"github.com/yungbote/candidate-intel-backend/internal/domain/chat"
	domainjobs "github.com/yungbote/candidate-intel-backend/internal/domain/jobs"
	httpH "github.com/yungbote/candidate-intel-backend/internal/http/handlers"
	httpMW "github.com/yungbote/candidate-intel-backend/internal/http/middleware"
	"github.com/yungbote/candidate-intel-backend/internal/platform/apierr"
	"github.com/yungbote/candidate-intel-backend/internal/platform/dbctx"
	"github.com/yungbote/candidate-intel-backend/internal/realtime"
	"github.com/yungbote/candidate-intel-backend/internal/services"
)

type fakeJobs struct {
	enqueued []map[string]any
	owner    string
	job      *types.JobRun
}

func (f *fakeJobs) Enqueue(dbc dbctx.Context, ownerID, jobType, entityType, entityID string, payload map[string]any) (*types.JobRun, error) {
	f.owner = ownerID
	f.enqueued = append(f.enqueued, payload)
	f.job = &types.JobRun{ID: uuid.New(), OwnerID: ownerID, JobType: jobType, EntityID: entityID, Status: domainjobs.StatusQueued}
	return f.job, nil
}

func (f *fakeJobs) LatestForEntity(dbc dbctx.Context, ownerID, jobType, entityType, entityID string) (*types.JobRun, error) {
	if f.job == nil || f.job.OwnerID != ownerID || f.job.EntityID != entityID || f.job.JobType != jobType {
		return nil, apierr.NotFound("not_found", "no job for entity")
	}
	return f.job, nil
}

func (f *fakeJobs) GetByIDForOwner(dbc dbctx.Context, ownerID string, jobID uuid.UUID) (*types.JobRun, error) {
	if f.job == nil || f.job.ID != jobID || f.job.OwnerID != ownerID {
		return nil, apierr.NotFound("not_found", "job not found")
	}
	return f.job, nil
}

type fakeSearch struct {
	results   []services.CandidateMatch
	err       error
	shortlist []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, candidateIDs ...string) ([]services.CandidateMatch, error) {
	f.shortlist = candidateIDs
	return f.results, f.err
}

type fakeSummaries struct{}

func (fakeSummaries) GetSummary(ctx context.Context, candidateID string) (*services.SummaryView, error) {
	if candidateID != "ada" {
		return nil, apierr.NotFound("not_found", "no summary for candidate")
	}
	return &services.SummaryView{CandidateID: "ada", Model: "m"}, nil
}

type fakeChat struct {
	fragments []string
	err       error
	req       services.ConverseRequest
}

func (f *fakeChat) Converse(ctx context.Context, req services.ConverseRequest, onFragment func(string) error) (*types.ChatMessage, error) {
	f.req = req
	for _, fr := range f.fragments {
		if err := onFragment(fr); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.ChatMessage{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Role: chat.RoleAssistant}, nil
}

func (f *fakeChat) History(ctx context.Context, recruiterID, candidateID string) ([]*types.ChatMessage, error) {
	return []*types.ChatMessage{{RecruiterID: recruiterID, CandidateID: candidateID, Role: chat.RoleUser, Content: "hi"}}, nil
}

type testServer struct {
	engine   *gin.Engine
	identity services.IdentityResolver
	jobs     *fakeJobs
	search   *fakeSearch
	chat     *fakeChat
	hub      *realtime.SSEHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	ts := &testServer{
		identity: services.NewIdentityResolver(log, "test-secret"),
		jobs:     &fakeJobs{},
		search:   &fakeSearch{},
		chat:     &fakeChat{},
		hub:      realtime.NewSSEHub(log),
	}
	ts.engine = NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, ts.identity),
		HealthHandler:   httpH.NewHealthHandler(nil),
		ProfileHandler:  httpH.NewProfileHandler(ts.jobs),
		JobHandler:      httpH.NewJobHandler(ts.jobs),
		SearchHandler:   httpH.NewSearchHandler(ts.search, fakeSummaries{}),
		ChatHandler:     httpH.NewChatHandler(log, ts.chat),
		RealtimeHandler: httpH.NewRealtimeHandler(log, ts.hub),
	})
	return ts
}

func (ts *testServer) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := ts.identity.IssueToken(subject, role, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" || cur.data != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if cur.name != "" || cur.data != "" {
		out = append(out, cur)
	}
	return out
}

func TestHealthcheckIsPublic(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthcheck", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: code=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(httpMW.HeaderRequestID) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAuthAndRoles(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: want=401 got=%d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", "garbage", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want=401 got=%d", rec.Code)
	}
	pro := ts.token(t, "pro@example.com", services.RoleProfessional)
	rec := ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", pro, "")
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "forbidden" {
		t.Fatalf("professional on recruiter route: want=403 got=%d", rec.Code)
	}
	rec2 := ts.do(t, http.MethodPost, "/api/profile", ts.token(t, "rec@example.com", services.RoleRecruiter), `{}`)
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("recruiter on profile route: want=403 got=%d", rec2.Code)
	}
}

func TestTokenQueryParam(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)
	rec := ts.do(t, http.MethodGet, "/api/ai/history?candidateId=ada&token="+tok, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("token query: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestProfileEnqueuesGeneration(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "pro@example.com", services.RoleProfessional)

	rec := ts.do(t, http.MethodPost, "/api/profile", tok, `{"name":"Ada","skills":["Go"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("profile: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if ts.jobs.owner != "pro@example.com" || len(ts.jobs.enqueued) != 1 {
		t.Fatalf("enqueue: owner=%s n=%d", ts.jobs.owner, len(ts.jobs.enqueued))
	}
	profile, ok := ts.jobs.enqueued[0]["profile"].(map[string]any)
	if !ok || profile["name"] != "Ada" {
		t.Fatalf("payload: got=%v", ts.jobs.enqueued[0])
	}

	var body struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if get := ts.do(t, http.MethodGet, "/api/jobs/"+body.Job.ID, tok, ""); get.Code != http.StatusOK {
		t.Fatalf("job read: want=200 got=%d", get.Code)
	}
	other := ts.token(t, "someone@example.com", services.RoleProfessional)
	if get := ts.do(t, http.MethodGet, "/api/jobs/"+body.Job.ID, other, ""); get.Code != http.StatusNotFound {
		t.Fatalf("foreign job read: want=404 got=%d", get.Code)
	}
	if get := ts.do(t, http.MethodGet, "/api/jobs/not-a-uuid", tok, ""); get.Code != http.StatusBadRequest {
		t.Fatalf("bad job id: want=400 got=%d", get.Code)
	}
}

func TestProfileRejectsNonObject(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "pro@example.com", services.RoleProfessional)
	for _, body := range []string{`[1,2]`, `"x"`, `{bad`} {
		if rec := ts.do(t, http.MethodPost, "/api/profile", tok, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: want=400 got=%d", body, rec.Code)
		}
	}
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)

	rec := ts.do(t, http.MethodGet, "/api/recruiter/search?query=%20%20", tok, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_query" {
		t.Fatalf("blank query: code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", tok, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"results":[]}` {
		t.Fatalf("empty results: code=%d body=%s", rec.Code, rec.Body.String())
	}

	ts.search.results = []services.CandidateMatch{{CandidateID: "ada", Score: 0.9}}
	rec = ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", tok, "")
	if !strings.Contains(rec.Body.String(), `"candidate_id":"ada"`) || !strings.Contains(rec.Body.String(), `"score":0.9`) {
		t.Fatalf("results: body=%s", rec.Body.String())
	}

	ts.search.err = &services.Error{Kind: services.ErrSearchMisconfiguration, Op: "search"}
	rec = ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", tok, "")
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != "search_misconfigured" {
		t.Fatalf("misconfigured: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSearchPassesShortlist(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)

	rec := ts.do(t, http.MethodGet, "/api/recruiter/search?query=go&candidateIds=ada,bob&candidateIds=carol", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := strings.Join(ts.search.shortlist, "|"); got != "ada|bob|carol" {
		t.Fatalf("shortlist: want=ada|bob|carol got=%s", got)
	}

	ts.do(t, http.MethodGet, "/api/recruiter/search?query=go", tok, "")
	if len(ts.search.shortlist) != 0 {
		t.Fatalf("no shortlist: got=%v", ts.search.shortlist)
	}
}

func TestCandidateGenerationStatus(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.token(t, "rec@example.com", services.RoleRecruiter)
	pro := ts.token(t, "ada", services.RoleProfessional)

	if r := ts.do(t, http.MethodGet, "/api/recruiter/candidates/ada/generation", rec, ""); r.Code != http.StatusNotFound {
		t.Fatalf("no job: want=404 got=%d body=%s", r.Code, r.Body.String())
	}

	ts.do(t, http.MethodPost, "/api/profile", pro, `{"name":"Ada"}`)
	r := ts.do(t, http.MethodGet, "/api/recruiter/candidates/ada/generation", rec, "")
	if r.Code != http.StatusOK {
		t.Fatalf("generation: want=200 got=%d body=%s", r.Code, r.Body.String())
	}
	var body struct {
		Generation map[string]any `json:"generation"`
	}
	if err := json.Unmarshal(r.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Generation["status"] != "queued" || body.Generation["job_id"] != ts.jobs.job.ID.String() {
		t.Fatalf("generation: got=%v", body.Generation)
	}
	if _, ok := body.Generation["payload"]; ok {
		t.Fatalf("generation view must not expose the profile payload")
	}

	if r := ts.do(t, http.MethodGet, "/api/recruiter/candidates/ada/generation", pro, ""); r.Code != http.StatusForbidden {
		t.Fatalf("professional caller: want=403 got=%d", r.Code)
	}
}

func TestSummaryRead(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)
	if rec := ts.do(t, http.MethodGet, "/api/recruiter/candidates/ada/summary", tok, ""); rec.Code != http.StatusOK {
		t.Fatalf("summary: want=200 got=%d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/recruiter/candidates/ghost/summary", tok, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing summary: want=404 got=%d", rec.Code)
	}
}

func TestChatStreamSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.chat.fragments = []string{"- Go", "\n\n- Postgres"}
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)

	rec := ts.do(t, http.MethodGet, "/api/ai/stream?candidateId=ada&question=skills%3F", tok, "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("stream: code=%d content-type=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if ts.chat.req.RecruiterID != "rec@example.com" || ts.chat.req.CandidateID != "ada" || ts.chat.req.Question != "skills?" {
		t.Fatalf("request: got=%+v", ts.chat.req)
	}
	events := parseSSE(rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events: want=3 got=%d body=%q", len(events), rec.Body.String())
	}
	var d1, d2 map[string]string
	_ = json.Unmarshal([]byte(events[0].data), &d1)
	_ = json.Unmarshal([]byte(events[1].data), &d2)
	if events[0].name != "message" || d1["delta"] != "- Go" || d2["delta"] != "\n\n- Postgres" {
		t.Fatalf("deltas: got=%+v", events[:2])
	}
	if events[2].name != "done" || !strings.Contains(events[2].data, "11111111-1111-1111-1111-111111111111") {
		t.Fatalf("done: got=%+v", events[2])
	}
}

func TestChatStreamGroundingMissingBeforeStream(t *testing.T) {
	ts := newTestServer(t)
	ts.chat.err = &services.Error{Kind: services.ErrGroundingMissing, Op: "converse"}
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)

	rec := ts.do(t, http.MethodGet, "/api/ai/stream?candidateId=ghost&question=hi", tok, "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "grounding_missing" {
		t.Fatalf("grounding: code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestChatStreamFailureAfterFragments(t *testing.T) {
	ts := newTestServer(t)
	ts.chat.fragments = []string{"partial"}
	ts.chat.err = &services.Error{Kind: services.ErrStreamFailure, Op: "converse"}
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)

	rec := ts.do(t, http.MethodGet, "/api/ai/stream?candidateId=ada&question=hi", tok, "")
	events := parseSSE(rec.Body.String())
	if len(events) != 2 || events[0].name != "message" || events[1].name != "error" {
		t.Fatalf("events: got=%+v", events)
	}
	if !strings.Contains(events[1].data, `"code":"stream_failed"`) {
		t.Fatalf("error event: got=%s", events[1].data)
	}
}

func TestChatStreamValidation(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "rec@example.com", services.RoleRecruiter)
	if rec := ts.do(t, http.MethodGet, "/api/ai/stream?candidateId=ada", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing question: want=400 got=%d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/ai/history", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing candidate: want=400 got=%d", rec.Code)
	}
}

func TestRealtimeStreamDeliversOwnEvents(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.token(t, "pro@example.com", services.RoleProfessional)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/realtime/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.engine.ServeHTTP(rec, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.Subscribers("pro@example.com") == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	ts.hub.Broadcast(realtime.SSEMessage{Channel: "someone-else", Event: realtime.SSEEventJobDone})
	ts.hub.Broadcast(realtime.SSEMessage{Channel: "pro@example.com", Event: realtime.SSEEventJobDone, Data: map[string]any{"job_id": "j1"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, `"event":"JobDone"`) || !strings.Contains(body, "j1") {
		t.Fatalf("stream body: %q", body)
	}
	if strings.Contains(body, "someone-else") {
		t.Fatalf("foreign channel leaked: %q", body)
	}
	if ts.hub.Subscribers("pro@example.com") != 0 {
		t.Fatalf("client should be removed after disconnect")
	}
}
