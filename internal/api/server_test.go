package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/session"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/storage/sqlite"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	mu      sync.Mutex
	events  []session.Event
	current *session.Session
	err     error
}

func (c *fakeCoordinator) Submit(ctx context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *fakeCoordinator) setCurrent(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
}

func (c *fakeCoordinator) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeCoordinator) submitted() []session.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Event(nil), c.events...)
}

func (c *fakeCoordinator) Current() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return session.Session{}, false
	}
	return *c.current, true
}

type testEnv struct {
	store       storage.Store
	coordinator *fakeCoordinator
	clock       *timeutil.TestClock
	server      *httptest.Server
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kfocus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:       store,
		coordinator: &fakeCoordinator{},
		clock:       timeutil.NewTestClock(time.Date(2026, 10, 19, 14, 0, 0, 0, time.Local)),
	}

	srv := NewServer(Options{
		Store:          store,
		Evaluator:      policy.NewEngine(store, nil, zerolog.Nop()),
		Coordinator:    env.coordinator,
		Clock:          env.clock,
		AllowedOrigins: []string{"chrome-extension://*"},
	}, zerolog.Nop())

	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestSetLimit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDomain string
		wantSecs   int64
	}{
		{"minutes", `{"domain":"www.YouTube.com","minutes":30}`, http.StatusOK, "youtube.com", 1800},
		{"seconds", `{"domain":"https://news.example.com/path","seconds":90}`, http.StatusOK, "news.example.com", 90},
		{"neither", `{"domain":"example.com"}`, http.StatusBadRequest, "", 0},
		{"both", `{"domain":"example.com","minutes":1,"seconds":60}`, http.StatusBadRequest, "", 0},
		{"negative", `{"domain":"example.com","minutes":-5}`, http.StatusBadRequest, "", 0},
		{"missing domain", `{"minutes":5}`, http.StatusBadRequest, "", 0},
		{"internal page", `{"domain":"chrome://settings","minutes":5}`, http.StatusBadRequest, "", 0},
		{"malformed", `{"domain":`, http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupServer(t)

			resp := env.do(t, http.MethodPut, "/api/v1/limits", tt.body)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusOK {
				errResp := decode[ErrorResponse](t, resp)
				assert.Equal(t, http.StatusBadRequest, errResp.Code)

				limits, err := env.store.Limits().List(context.Background())
				require.NoError(t, err)
				assert.Empty(t, limits)
				return
			}

			got := decode[LimitResponse](t, resp)
			assert.Equal(t, tt.wantDomain, got.Domain)
			assert.Equal(t, tt.wantSecs, got.Seconds)

			stored, err := env.store.Limits().Get(context.Background(), tt.wantDomain)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSecs, stored)
		})
	}
}

func TestListAndDeleteLimits(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	require.NoError(t, env.store.Limits().Set(ctx, "youtube.com", 1800))
	require.NoError(t, env.store.Limits().Set(ctx, "reddit.com", 600))

	resp := env.do(t, http.MethodGet, "/api/v1/limits", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int64{"youtube.com": 1800, "reddit.com": 600}, decode[map[string]int64](t, resp))

	resp = env.do(t, http.MethodDelete, "/api/v1/limits/www.youtube.com", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := env.store.Limits().Get(ctx, "youtube.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting an unlimited domain is not an error.
	resp = env.do(t, http.MethodDelete, "/api/v1/limits/unknown.org", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	require.NoError(t, env.store.Limits().Set(ctx, "youtube.com", 600))
	_, err := env.store.Usage().Add(ctx, "youtube.com", 570)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/api/v1/status/youtube.com", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[StatusResponse](t, resp)
	assert.Equal(t, "youtube.com", got.Domain)
	assert.False(t, got.ShouldBlock)
	assert.Equal(t, int64(570), got.Used)
	assert.Equal(t, int64(600), got.Limit)
	assert.Equal(t, policy.LevelDanger, got.Level.State)
	assert.InDelta(t, 95.0, got.Level.Percent, 0.001)
	assert.Equal(t, "9m 30s", got.UsedFormatted)
	assert.Equal(t, "10m 0s", got.LimitFormatted)

	_, err = env.store.Usage().Add(ctx, "youtube.com", 30)
	require.NoError(t, err)

	got = decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/v1/status/youtube.com", ""))
	assert.True(t, got.ShouldBlock)
	assert.Equal(t, float64(100), got.Level.Percent)
}

func TestStatusUnlimited(t *testing.T) {
	env := setupServer(t)

	got := decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/v1/status/example.com", ""))
	assert.False(t, got.ShouldBlock)
	assert.Zero(t, got.Limit)
	assert.Equal(t, policy.LevelOK, got.Level.State)
	assert.Empty(t, got.LimitFormatted)
	assert.Equal(t, "00m 00s", got.UsedFormatted)
}

func TestStats(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()
	for domain, secs := range map[string]int64{
		"a.com": 10, "b.com": 300, "c.com": 200, "d.com": 200, "e.com": 5, "f.com": 1,
	} {
		_, err := env.store.Usage().Add(ctx, domain, secs)
		require.NoError(t, err)
	}
	require.NoError(t, env.store.Usage().Reset(ctx, "Sun Oct 18 2026"))
	for domain, secs := range map[string]int64{
		"a.com": 10, "b.com": 300, "c.com": 200, "d.com": 200, "e.com": 5, "f.com": 1,
	} {
		_, err := env.store.Usage().Add(ctx, domain, secs)
		require.NoError(t, err)
	}

	env.coordinator.setCurrent(&session.Session{
		ID:        "s1",
		TabID:     7,
		Domain:    "b.com",
		StartedAt: env.clock.Now().Add(-42 * time.Second),
	})

	resp := env.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[StatsResponse](t, resp)

	require.Len(t, got.Top, 5)
	domains := make([]string, 0, len(got.Top))
	for _, e := range got.Top {
		domains = append(domains, e.Domain)
	}
	assert.Equal(t, []string{"b.com", "c.com", "d.com", "a.com", "e.com"}, domains)
	assert.Equal(t, "5m 0s", got.Top[0].Formatted)
	assert.Equal(t, int64(716), got.TotalSeconds)
	assert.Equal(t, "Sun Oct 18 2026", got.LastReset)

	require.NotNil(t, got.Current)
	assert.Equal(t, "b.com", got.Current.Domain)
	assert.Equal(t, 7, got.Current.TabID)
	assert.Equal(t, int64(42), got.Current.ElapsedSeconds)

	got = decode[StatsResponse](t, env.do(t, http.MethodGet, "/api/v1/stats?top=2", ""))
	assert.Len(t, got.Top, 2)

	resp = env.do(t, http.MethodGet, "/api/v1/stats?top=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEmpty(t *testing.T) {
	env := setupServer(t)

	got := decode[StatsResponse](t, env.do(t, http.MethodGet, "/api/v1/stats", ""))
	assert.Empty(t, got.Top)
	assert.Zero(t, got.TotalSeconds)
	assert.Empty(t, got.LastReset)
	assert.Nil(t, got.Current)
}

func TestReset(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	events := env.coordinator.submitted()
	require.Len(t, events, 1)
	assert.Equal(t, session.ResetRequested{Trigger: "api"}, events[0])

	env.coordinator.failWith(session.ErrStopped)
	resp = env.do(t, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/limits", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "chrome-extension://abcdef", resp.Header.Get("Access-Control-Allow-Origin"))
}
