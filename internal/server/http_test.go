package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smukkama/helmet-monitor/internal/auth"
	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/dashboard"
	"github.com/smukkama/helmet-monitor/internal/ingest"
	"github.com/smukkama/helmet-monitor/internal/reading"
	"github.com/smukkama/helmet-monitor/internal/store"
	"github.com/smukkama/helmet-monitor/pkg/config"
)

const (
	testUser     = "admin"
	testPassword = "admin123"
)

type brokenStore struct{}

func (brokenStore) Append(ctx context.Context, r reading.Reading) error {
	return fmt.Errorf("%w: disk full", store.ErrWrite)
}

func (brokenStore) ReadAll(ctx context.Context) ([]reading.Reading, error) { return nil, nil }

func (brokenStore) Close() error { return nil }

func newTestServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	return newObservedServer(t, st, zap.NewNop())
}

func newObservedServer(t *testing.T, st store.Store, logger *zap.Logger) *httptest.Server {
	t.Helper()

	clk := clock.Fixed{T: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)}
	authenticator, err := auth.NewAuthenticator(testUser, testPassword, "", zap.NewNop())
	require.NoError(t, err)

	cfg := &config.HTTPConfig{Port: 0, MaxBodyBytes: 1024}
	srv := NewHTTPServer(cfg,
		ingest.NewPipeline(clk, st, nil, zap.NewNop()),
		dashboard.NewService(st, clk, zap.NewNop()),
		authenticator,
		logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newFileStore(t *testing.T) store.Store {
	t.Helper()
	fs, err := store.OpenFile(filepath.Join(t.TempDir(), "data.json"), zap.NewNop())
	require.NoError(t, err)
	return store.Serialize(fs)
}

func post(t *testing.T, ts *httptest.Server, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/data", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func get(t *testing.T, ts *httptest.Server, path string, authenticated bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if authenticated {
		req.SetBasicAuth(testUser, testPassword)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIngest_Responses(t *testing.T) {
	ts := newTestServer(t, newFileStore(t))

	cases := []struct {
		name   string
		body   string
		status int
		key    string
		msg    string
	}{
		{"saved", `{"person_id":"H-01","mq7":0,"temperature":24.5}`, http.StatusOK, "message", "Data saved"},
		{"missing id", `{"mq7":1}`, http.StatusBadRequest, "error", "No person ID provided"},
		{"empty id", `{"person_id":""}`, http.StatusBadRequest, "error", "No person ID provided"},
		{"empty object", `{}`, http.StatusBadRequest, "error", "No data received"},
		{"empty body", ``, http.StatusBadRequest, "error", "No data received"},
		{"not json", `hello`, http.StatusBadRequest, "error", "No data received"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := post(t, ts, tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.msg, out[tc.key])
		})
	}
}

func TestIngest_StorageFailure(t *testing.T) {
	ts := newTestServer(t, brokenStore{})

	status, out := post(t, ts, `{"person_id":"H-01"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to save data", out["error"])
}

func TestIngest_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, newFileStore(t))

	body := `{"person_id":"H-01","note":"` + strings.Repeat("x", 2048) + `"}`
	status, _ := post(t, ts, body)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestIngest_ConcurrentRequestsAllPersisted(t *testing.T) {
	st := newFileStore(t)
	ts := newTestServer(t, st)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/data", "application/json",
				strings.NewReader(fmt.Sprintf(`{"person_id":"H-%02d","seq":%d}`, i%3, i)))
			if err != nil {
				t.Errorf("request %d failed: %v", i, err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("Expected status 200 for request %d, got %d", i, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()

	readings, err := st.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, readings, n)
}

func TestDashboard_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, newFileStore(t))

	for _, path := range []string{"/data", "/api/persons", "/api/summary", "/api/persons/H-01"} {
		resp := get(t, ts, path, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := get(t, ts, "/healthz", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDashboard_Feeds(t *testing.T) {
	ts := newTestServer(t, newFileStore(t))

	status, _ := post(t, ts, `{"person_id":"H-01","mq2":1,"temperature":38,"latitude":-1.28,"longitude":36.81}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, ts, `{"person_id":"H-02","pressure":250}`)
	require.Equal(t, http.StatusOK, status)

	resp := get(t, ts, "/data", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var raw []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "H-01", raw[0]["person_id"])
	assert.Equal(t, "2026-10-19T08:30:00Z", raw[0]["timestamp"])

	resp = get(t, ts, "/api/persons", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var persons []dashboard.PersonStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&persons))
	require.Len(t, persons, 2)
	assert.Equal(t, "H-01", persons[0].PersonID)
	assert.Equal(t, "online", string(persons[0].Status))

	resp = get(t, ts, "/api/persons/H-02", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		PersonID   string `json:"person_id"`
		Advisories []struct {
			Severity  string `json:"severity"`
			Dimension string `json:"dimension"`
		} `json:"advisories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, "H-02", detail.PersonID)
	require.Len(t, detail.Advisories, 1)
	assert.Equal(t, "pressure", detail.Advisories[0].Dimension)
	assert.Equal(t, "error", detail.Advisories[0].Severity)

	resp = get(t, ts, "/api/persons/H-01/track", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var track dashboard.Track
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&track))
	require.Len(t, track.Points, 1)
	assert.Equal(t, -1.28, track.Points[0].Latitude)

	resp = get(t, ts, "/api/summary", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overview dashboard.Overview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&overview))
	assert.Equal(t, 2, overview.TotalRecords)
	assert.Equal(t, 2, overview.Persons)

	resp = get(t, ts, "/api/persons/nobody/readings", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestID_Echoed(t *testing.T) {
	ts := newTestServer(t, newFileStore(t))

	resp := get(t, ts, "/healthz", false)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestDashboard_LogsAuthenticatedUser(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ts := newObservedServer(t, newFileStore(t), zap.New(core))

	resp := get(t, ts, "/api/summary", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	served := logs.FilterMessage("dashboard feed served").All()
	require.Len(t, served, 1)
	fields := served[0].ContextMap()
	assert.Equal(t, testUser, fields["user"])
	assert.Equal(t, "/api/summary", fields["path"])
}
