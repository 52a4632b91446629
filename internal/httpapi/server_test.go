package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PrathamGupta06/website-developer/internal/orchestrator"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []orchestrator.Request
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Outcome{TaskID: req.TaskID, Round: req.Round}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newTestServer(t *testing.T) (*Server, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	s, err := NewServer(context.Background(), runner, zap.NewNop(), Config{Secret: "sekret"})
	require.NoError(t, err)
	return s, runner
}

func postBuild(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/build", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"email":          "student@example.edu",
		"secret":         "sekret",
		"task":           "captcha-solver-xyz",
		"round":          1,
		"nonce":          "ab12",
		"brief":          "solve captchas",
		"checks":         []string{"loads"},
		"evaluation_url": "https://grader.test/notify",
	}
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestBuildAcceptedAndRunsInBackground(t *testing.T) {
	s, runner := newTestServer(t)

	rec := postBuild(s, marshal(t, validBody()))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp BuildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "captcha-solver-xyz", resp.Task)
	assert.Equal(t, 1, resp.Round)

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	run := runner.runs[0]
	assert.Equal(t, "captcha-solver-xyz", run.TaskID)
	assert.Equal(t, "https://grader.test/notify", run.CallbackURL)
	assert.Equal(t, []string{"loads"}, run.Checks)
}

func TestBuildRejectsInvalidSecret(t *testing.T) {
	s, runner := newTestServer(t)

	body := validBody()
	body["secret"] = "wrong"
	rec := postBuild(s, marshal(t, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.count())
}

func TestBuildRejectsMalformedShape(t *testing.T) {
	s, runner := newTestServer(t)

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing task", func(b map[string]any) { b["task"] = "" }},
		{"zero round", func(b map[string]any) { b["round"] = 0 }},
		{"bad email", func(b map[string]any) { b["email"] = "not-an-email" }},
		{"missing brief", func(b map[string]any) { b["brief"] = "" }},
		{"bad evaluation url", func(b map[string]any) { b["evaluation_url"] = "ftp://nope" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBody()
			tc.mutate(body)
			rec := postBuild(s, marshal(t, body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, runner.count())
}

func TestBuildRejectsInvalidJSON(t *testing.T) {
	s, runner := newTestServer(t)

	rec := postBuild(s, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, runner.count())
}

func TestBuildDecodesAttachmentsAndDropsBadOnes(t *testing.T) {
	s, runner := newTestServer(t)

	payload := base64.StdEncoding.EncodeToString([]byte("image-bytes"))
	body := validBody()
	body["attachments"] = []map[string]string{
		{"name": "sample.png", "url": "data:image/png;base64," + payload},
		{"name": "broken.bin", "url": "https://example.com/not-a-data-uri"},
	}

	rec := postBuild(s, marshal(t, body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool { return runner.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	atts := runner.runs[0].Attachments
	require.Len(t, atts, 1)
	assert.Equal(t, "sample.png", atts[0].Name)
	assert.Equal(t, "image/png", atts[0].MIME)
	assert.Equal(t, []byte("image-bytes"), atts[0].Data)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointServes(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestShutdownWaitsForInFlightRounds(t *testing.T) {
	runner := &fakeRunner{}
	s, err := NewServer(context.Background(), runner, zap.NewNop(), Config{Secret: "sekret"})
	require.NoError(t, err)

	rec := postBuild(s, marshal(t, validBody()))
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 1, runner.count())
}
