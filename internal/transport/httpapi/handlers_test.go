package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/adapters/errorlog"
	"ytmp3convert/internal/adapters/notify"
	"ytmp3convert/internal/adapters/wshub"
	"ytmp3convert/internal/core/domain"
	"ytmp3convert/internal/service"
)

type fakeMetadata struct{}

func (fakeMetadata) FetchMetadata(_ context.Context, id string) (*domain.VideoMetadata, error) {
	if id == "longlonglon" {
		return &domain.VideoMetadata{Title: "Long", DurationSeconds: 3600}, nil
	}
	return &domain.VideoMetadata{Title: "Test Song", DurationSeconds: 200}, nil
}

// gatedConverter answers "processing" until its gate is opened.
type gatedConverter struct {
	mu   sync.Mutex
	open bool
}

func (g *gatedConverter) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
}

func (g *gatedConverter) Convert(_ context.Context, id string) (*domain.ConversionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return &domain.ConversionStatus{Status: domain.StatusProcessing}, nil
	}
	return &domain.ConversionStatus{Status: domain.StatusOK, Link: "https://cdn.test/" + id + ".mp3"}, nil
}

type testAPI struct {
	server *httptest.Server
	conv   *gatedConverter
	errors *errorlog.Memory
	hub    *wshub.Hub
}

func newTestAPI(t *testing.T, rps int) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quiet := log.New(io.Discard, "", 0)
	ctx, cancel := context.WithCancel(context.Background())

	conv := &gatedConverter{}
	errs := errorlog.NewMemory()
	hub := wshub.NewHub(quiet)
	go hub.Run(ctx)

	policy := service.Policy{PollInterval: 5 * time.Millisecond, MaxPollAttempts: 1000}
	sessions := NewSessions(func(sid string) *service.Orchestrator {
		sink := notify.WithSession(sid, notify.Multi{hub, errorlog.NewNotifier(errs, quiet)})
		return service.NewOrchestrator(fakeMetadata{}, conv, sink, nil, policy, quiet)
	})

	h := NewHandler(HandlerConfig{
		Service:     "ytmp3convert-test",
		Sessions:    sessions,
		Hub:         hub,
		Errors:      errs,
		BaseContext: ctx,
		Logger:      quiet,
	})
	router := NewRouter(h, RouterConfig{RateLimitRPS: rps, RateLimitBurst: rps, Logger: quiet})
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		sessions.CancelAll()
		cancel()
		srv.Close()
	})
	return &testAPI{server: srv, conv: conv, errors: errs, hub: hub}
}

func (a *testAPI) do(t *testing.T, method, path, session, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func (a *testAPI) waitForState(t *testing.T, session string, want domain.JobState) map[string]any {
	t.Helper()
	var job map[string]any
	require.Eventually(t, func() bool {
		resp, body := a.do(t, http.MethodGet, "/api/job", session, "")
		job = body
		return resp.StatusCode == http.StatusOK && body["state"] == string(want)
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, 0)
	resp, body := api.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ytmp3convert-test", body["service"])
}

func TestConvert_RunsInBackground(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, body := api.do(t, http.MethodPost, "/api/convert", "tab1", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "tab1", body["session"])
	job := body["job"].(map[string]any)
	assert.NotEmpty(t, job["job_id"])

	api.waitForState(t, "tab1", domain.StatePolling)
	api.conv.Open()
	done := api.waitForState(t, "tab1", domain.StateSucceeded)

	assert.Equal(t, job["job_id"], done["job_id"])
	assert.Equal(t, "https://cdn.test/dQw4w9WgXcQ.mp3", done["result_url"])
	assert.Equal(t, "Test_Song.mp3", done["filename"])
}

func TestConvert_RejectsMissingURL(t *testing.T) {
	api := newTestAPI(t, 0)
	for _, body := range []string{`{}`, `{"url":"  "}`, `not json`} {
		resp, out := api.do(t, http.MethodPost, "/api/convert", "", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "url is required", out["error"])
	}
}

func TestConvert_InvalidURLFailsAndIsLogged(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, _ := api.do(t, http.MethodPost, "/api/convert", "", `{"url":"https://vimeo.com/123"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	job := api.waitForState(t, DefaultSession, domain.StateFailed)
	lastErr := job["last_error"].(map[string]any)
	assert.Equal(t, string(domain.KindInvalidURL), lastErr["kind"])

	require.Eventually(t, func() bool {
		_, body := api.do(t, http.MethodGet, "/api/errors", "", "")
		entries, _ := body["errors"].([]any)
		return len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = api.do(t, http.MethodDelete, "/api/errors", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries, err := api.errors.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvert_DurationRejected(t *testing.T) {
	api := newTestAPI(t, 0)
	api.do(t, http.MethodPost, "/api/convert", "", `{"url":"https://youtu.be/longlonglon"}`)

	job := api.waitForState(t, DefaultSession, domain.StateDurationRejected)
	assert.Equal(t, string(domain.KindDurationExceeded), job["last_error"].(map[string]any)["kind"])
}

func TestSessionsAreIsolated(t *testing.T) {
	api := newTestAPI(t, 0)

	api.do(t, http.MethodPost, "/api/convert", "a", `{"url":"https://youtu.be/aaaaaaaaaaa"}`)
	api.waitForState(t, "a", domain.StatePolling)

	resp, _ := api.do(t, http.MethodGet, "/api/job", "b", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	api.do(t, http.MethodPost, "/api/convert", "b", `{"url":"https://youtu.be/bbbbbbbbbbb"}`)
	api.waitForState(t, "b", domain.StatePolling)
	api.waitForState(t, "a", domain.StatePolling)
}

func TestCancelJob(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, _ := api.do(t, http.MethodDelete, "/api/job", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	api.do(t, http.MethodPost, "/api/convert", "", `{"url":"https://youtu.be/aaaaaaaaaaa"}`)
	api.waitForState(t, DefaultSession, domain.StatePolling)

	resp, body := api.do(t, http.MethodDelete, "/api/job", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.StateFailed), body["job"].(map[string]any)["state"])
}

func TestInvalidSession(t *testing.T) {
	api := newTestAPI(t, 0)
	resp, _ := api.do(t, http.MethodGet, "/api/job?session=../../x", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFormatDuration(t *testing.T) {
	api := newTestAPI(t, 0)

	resp, body := api.do(t, http.MethodGet, "/api/format?seconds=3725", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1:02:05", body["formatted"])

	resp, _ = api.do(t, http.MethodGet, "/api/format?seconds=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJobByID_WithoutStore(t *testing.T) {
	api := newTestAPI(t, 0)
	resp, _ := api.do(t, http.MethodGet, "/api/jobs/whatever", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, 2)

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		resp, _ := api.do(t, http.MethodGet, "/api/format?seconds=1", "", "")
		codes[resp.StatusCode]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])

	resp, _ := api.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketReceivesSessionNotifications(t *testing.T) {
	api := newTestAPI(t, 0)

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/ws?session=tab9"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return api.hub.ClientCount("tab9") == 1 }, 2*time.Second, 10*time.Millisecond)

	api.do(t, http.MethodPost, "/api/convert?session=tab9", "", `{"url":"https://youtu.be/dQw4w9WgXcQ"}`)

	var n domain.Notification
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "tab9", n.Session)
	assert.Equal(t, domain.StateValidatingInput, n.State)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, 0)

	req, err := http.NewRequest(http.MethodOptions, api.server.URL+"/api/convert", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Session-ID")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
