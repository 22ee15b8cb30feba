package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studyhub/internal/api/handlers"
	"studyhub/internal/apperr"
	"studyhub/internal/models"
	"studyhub/internal/quiz"
	"studyhub/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const generatedQuestions = "```json\n" + `{"questions":[
 {"id":"q1","prompt":"Capital of France?","choices":["Berlin","Paris","Rome","Madrid"],"correctIndex":1},
 {"id":"q2","prompt":"2 + 2?","choices":["4","5","6","3"],"correctIndex":0}
]}` + "\n```"

const generatedJustifications = `{"justifications":[{"qId":"q2","explanation":"Two plus two is four."}]}`

type fakeGenerator struct {
	questions string
	err       error
	block     bool
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, _ int32) (string, error) {
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(prompt, `"justifications"`) {
		return generatedJustifications, nil
	}
	return g.questions, nil
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	gen    *fakeGenerator
	cookie string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return newTestServerWithStore(t, st)
}

func newTestServerWithStore(t *testing.T, st store.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gen := &fakeGenerator{questions: generatedQuestions}
	svc := quiz.NewService(st, gen, quiz.Options{Timeout: 50 * time.Millisecond})

	router := gin.New()
	router.Use(sessions.Sessions("studyhub_session", cookie.NewStore([]byte("test-secret"))))
	SetupRoutes(router, handlers.NewHandler(svc, nil), "http://localhost:5173/")
	return &testServer{t: t, router: router, gen: gen}
}

// do sends a request, carrying the session cookie between calls.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				s.t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "studyhub_session" {
			s.cookie = c.Name + "=" + c.Value
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[models.ErrorResponse](t, rec)
	if resp.Kind != kind || resp.Error == "" {
		t.Fatalf("error response = %+v, want kind %s", resp, kind)
	}
}

func (s *testServer) createTest() models.TestSummary {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "Basics", Text: "Paris is the capital of France.", Requested: 2})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[models.TestSummary](s.t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodOptions, "/api/tests", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestCreateListAndGetTest(t *testing.T) {
	s := newTestServer(t)
	summary := s.createTest()
	if summary.ID == "" || summary.Name != "Basics" || summary.QuestionCount != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	list := decode[[]models.TestSummary](t, s.do(http.MethodGet, "/api/tests", nil))
	if len(list) != 1 || list[0].ID != summary.ID {
		t.Fatalf("list = %+v", list)
	}

	rec := s.do(http.MethodGet, "/api/tests/"+summary.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	test := decode[models.Test](t, rec)
	if len(test.Questions) != 2 || test.Questions[0].CorrectIndex != 1 || test.SourceText == "" {
		t.Fatalf("test = %+v", test)
	}
}

func TestCreateTestErrors(t *testing.T) {
	s := newTestServer(t)

	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Text: "passage"}), http.StatusBadRequest, "invalid_argument")
	expectError(t, s.do(http.MethodPost, "/api/tests", "{not json"), http.StatusBadRequest, "invalid_argument")

	s.gen.questions = "I would rather not."
	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "n", Text: "t"}), http.StatusBadGateway, "generation_parse_error")

	s.gen.questions = `{"questions": []}`
	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "n", Text: "t"}), http.StatusBadGateway, "empty_generation")

	s.gen.err = errors.New("upstream 500")
	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "n", Text: "t"}), http.StatusBadGateway, "generation_failed")

	s.gen.block = true
	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "n", Text: "t"}), http.StatusGatewayTimeout, "generation_timeout")

	list := decode[[]models.TestSummary](t, s.do(http.MethodGet, "/api/tests", nil))
	if len(list) != 0 {
		t.Fatalf("failed generations stored tests: %+v", list)
	}
}

func TestGetUnknownTest(t *testing.T) {
	s := newTestServer(t)
	expectError(t, s.do(http.MethodGet, "/api/tests/3d8e2f3a-9b4c-4c55-8f0e-2a7b6c5d4e3f", nil), http.StatusNotFound, "not_found")
	expectError(t, s.do(http.MethodGet, "/api/tests/not-a-uuid", nil), http.StatusNotFound, "not_found")
}

func TestSubmitIgnoresClientScore(t *testing.T) {
	s := newTestServer(t)
	learner := decode[map[string]string](t, s.do(http.MethodGet, "/api/learner", nil))["learnerId"]
	if learner == "" {
		t.Fatal("no learner id issued")
	}
	summary := s.createTest()

	body := `{"score": 100, "answers": [
		{"qId": "q1", "selectedIndex": 1, "correct": true},
		{"qId": "q2", "selectedIndex": 3, "correct": true}
	]}`
	rec := s.do(http.MethodPost, "/api/tests/"+summary.ID+"/submissions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.SubmitResponse](t, rec)
	if resp.Score != 50 || resp.Submission.Score != 50 {
		t.Fatalf("score = %d/%d, want 50", resp.Score, resp.Submission.Score)
	}
	if resp.Submission.Answers[1].Correct {
		t.Fatal("client-supplied correct flag was trusted")
	}
	if resp.Submission.UserID != learner {
		t.Fatalf("userId = %q, want session learner %q", resp.Submission.UserID, learner)
	}

	test := decode[models.Test](t, s.do(http.MethodGet, "/api/tests/"+summary.ID, nil))
	if len(test.Results) != 1 || test.Results[0].Score != 50 {
		t.Fatalf("stored results = %+v", test.Results)
	}
}

func TestSubmitExplicitUserAndUnknownTest(t *testing.T) {
	s := newTestServer(t)
	summary := s.createTest()

	rec := s.do(http.MethodPost, "/api/tests/"+summary.ID+"/submissions", models.SubmitRequest{UserID: "alice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}
	resp := decode[models.SubmitResponse](t, rec)
	if resp.Submission.UserID != "alice" || resp.Score != 0 {
		t.Fatalf("submission = %+v", resp.Submission)
	}
	for _, a := range resp.Submission.Answers {
		if a.SelectedIndex != -1 || a.Correct {
			t.Fatalf("empty submission answer = %+v", a)
		}
	}

	expectError(t, s.do(http.MethodPost, "/api/tests/3d8e2f3a-9b4c-4c55-8f0e-2a7b6c5d4e3f/submissions", models.SubmitRequest{}), http.StatusNotFound, "not_found")
}

func TestRemediation(t *testing.T) {
	s := newTestServer(t)
	summary := s.createTest()
	path := "/api/tests/" + summary.ID + "/remediation"

	expectError(t, s.do(http.MethodPost, path, models.RemediationRequest{QIDs: []string{"q2"}}), http.StatusConflict, "no_submission")

	s.do(http.MethodPost, "/api/tests/"+summary.ID+"/submissions", models.SubmitRequest{})

	expectError(t, s.do(http.MethodPost, path, models.RemediationRequest{}), http.StatusBadRequest, "invalid_argument")

	rec := s.do(http.MethodPost, path, models.RemediationRequest{QIDs: []string{"q2", "stale"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("remediation status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.RemediationResponse](t, rec)
	if len(resp.Justifications) != 1 || resp.Justifications[0].QID != "q2" {
		t.Fatalf("justifications = %+v", resp.Justifications)
	}
}

func TestLearnerIDIsStable(t *testing.T) {
	s := newTestServer(t)
	first := decode[map[string]string](t, s.do(http.MethodGet, "/api/learner", nil))["learnerId"]
	second := decode[map[string]string](t, s.do(http.MethodGet, "/api/learner", nil))["learnerId"]
	if first == "" || first != second {
		t.Fatalf("learner ids %q then %q, want the same id", first, second)
	}

	s.cookie = ""
	third := decode[map[string]string](t, s.do(http.MethodGet, "/api/learner", nil))["learnerId"]
	if third == first {
		t.Fatal("new session reused another learner's id")
	}
}

type brokenStore struct {
	store.Store
	broken bool
}

func (s *brokenStore) Create(ctx context.Context, t *models.Test) (string, error) {
	if s.broken {
		return "", apperr.Storage("write test", errors.New("read-only file system"))
	}
	return s.Store.Create(ctx, t)
}

func (s *brokenStore) AppendSubmission(ctx context.Context, testID string, sub models.Submission) error {
	if s.broken {
		return apperr.Storage("update test "+testID, errors.New("read-only file system"))
	}
	return s.Store.AppendSubmission(ctx, testID, sub)
}

func TestStorageFailureIsServerError(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st := &brokenStore{Store: fs}
	s := newTestServerWithStore(t, st)
	summary := s.createTest()

	st.broken = true
	expectError(t, s.do(http.MethodPost, "/api/tests", models.CreateTestRequest{Name: "n", Text: "t"}), http.StatusInternalServerError, "storage_error")
	expectError(t, s.do(http.MethodPost, "/api/tests/"+summary.ID+"/submissions", models.SubmitRequest{}), http.StatusInternalServerError, "storage_error")

	list := decode[[]models.TestSummary](t, s.do(http.MethodGet, "/api/tests", nil))
	if len(list) != 1 {
		t.Fatalf("list = %+v, want only the first test", list)
	}
	test := decode[models.Test](t, s.do(http.MethodGet, "/api/tests/"+summary.ID, nil))
	if len(test.Results) != 0 {
		t.Fatalf("failed submit stored results: %+v", test.Results)
	}
}
