package server_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbeans/plugin-counter/internal/config"
	srv "github.com/openbeans/plugin-counter/internal/server"
	"github.com/openbeans/plugin-counter/model"
	"github.com/openbeans/plugin-counter/storage/inmemory"
)

type stubFetcher struct {
	count int64
	err   error
	calls int
}

func (f *stubFetcher) FetchDownloadCount(ctx context.Context, pluginID string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

type failingStorage struct {
	srv.Storage
	err error
}

func (f *failingStorage) LatestSample(ctx context.Context, pluginID string) (*model.Sample, error) {
	return nil, f.err
}

func (f *failingStorage) History(ctx context.Context, pluginID string, since time.Time) ([]model.Sample, error) {
	return nil, f.err
}

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Addr:                 "localhost:0",
		Logger:               zap.NewNop().Sugar(),
		ThrottleHours:        24,
		DefaultSparklineDays: 30,
		SparklineWidth:       200,
		SparklineHeight:      50,
		SparklineColor:       "#007ec6",
		BadgeLabel:           "downloads",
		BadgeColor:           "#007ec6",
	}
}

func newTestServer(storage srv.Storage, fetcher srv.Fetcher) http.Handler {
	return srv.NewServer(storage, fetcher, testConfig()).Router()
}

func doRequest(t *testing.T, h http.Handler, method, url string, body []byte) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, rdr)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestBadgeHandlerNoData(t *testing.T) {
	router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/api/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload model.BadgePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, 1, payload.SchemaVersion)
	require.Equal(t, "no data", payload.Message)
	require.Equal(t, "lightgrey", payload.Color)
}

func TestBadgeHandlerWithSample(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	require.NoError(t, store.AddSample(ctx, &model.Sample{
		PluginID:  "118",
		Timestamp: time.Now(),
		Count:     1500000,
	}))
	router := newTestServer(store, &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/api/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload model.BadgePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "1.5M", payload.Message)
	require.Equal(t, "downloads", payload.Label)
	require.Equal(t, "007ec6", payload.Color)
}

func TestBadgeHandlerStorageError(t *testing.T) {
	store := &failingStorage{Storage: inmemory.NewMemStorage(context.Background()), err: errors.New("db gone")}
	router := newTestServer(store, &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/api/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var payload model.BadgePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "error", payload.Message)
	require.Equal(t, "red", payload.Color)
}

func TestSparklineHandlerEmpty(t *testing.T) {
	router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/sparkline/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "No data")
	require.Contains(t, body.String(), `width="200" height="50"`)
}

func TestSparklineHandlerWithHistory(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	now := time.Now()
	for i, count := range []int64{10, 12, 15} {
		require.NoError(t, store.AddSample(ctx, &model.Sample{
			PluginID:  "118",
			Timestamp: now.AddDate(0, 0, i-3),
			Count:     count,
		}))
	}
	router := newTestServer(store, &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/sparkline/118?days=7", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "<polyline")
	require.Contains(t, body.String(), "url(#gradient)")
}

func TestSparklineHandlerClampsDays(t *testing.T) {
	for _, q := range []string{"?days=0", "?days=99999", "?days=-4", "?days=abc", ""} {
		router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{})

		resp := doRequest(t, router, http.MethodGet, "/sparkline/118"+q, nil)
		resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode, "query %q", q)
	}
}

func TestSparklineHandlerStorageErrorStillRendersPlaceholder(t *testing.T) {
	store := &failingStorage{Storage: inmemory.NewMemStorage(context.Background()), err: errors.New("db gone")}
	router := newTestServer(store, &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/sparkline/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "<svg")
	require.Contains(t, body.String(), "No data")
}

func TestUpdateHandlerSuccess(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	fetcher := &stubFetcher{count: 1234}
	router := newTestServer(store, fetcher)

	resp := doRequest(t, router, http.MethodPost, "/update/118", []byte(`{"name":"Darcula"}`))
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success   bool   `json:"success"`
		PluginID  string `json:"plugin_id"`
		Count     int64  `json:"count"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, "118", body.PluginID)
	require.Equal(t, int64(1234), body.Count)
	require.NotEmpty(t, body.Timestamp)

	last, err := store.LatestSample(ctx, "118")
	require.NoError(t, err)
	require.Equal(t, int64(1234), last.Count)

	plugin, err := store.GetPlugin(ctx, "118")
	require.NoError(t, err)
	require.Equal(t, "Darcula", plugin.Name)

	logs, err := store.RecentScrapeLogs(ctx, "118", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.True(t, logs[0].Success)
}

func TestUpdateHandlerThrottled(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	fetcher := &stubFetcher{count: 1234}
	router := newTestServer(store, fetcher)

	resp := doRequest(t, router, http.MethodPost, "/update/118", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, router, http.MethodPost, "/update/118", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		LastFetched string `json:"last_fetched"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Too many requests", body.Error)
	require.NotEmpty(t, body.LastFetched)
	require.Equal(t, 1, fetcher.calls, "second request must not hit the portal")
}

func TestUpdateHandlerFetchFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	fetcher := &stubFetcher{err: errors.New("could not find download icon on page")}
	router := newTestServer(store, fetcher)

	resp := doRequest(t, router, http.MethodPost, "/update/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Scraper error", body.Error)

	_, err := store.LatestSample(ctx, "118")
	require.Error(t, err, "no sample persisted on fetch failure")

	logs, err := store.RecentScrapeLogs(ctx, "118", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.False(t, logs[0].Success)
	require.NotEmpty(t, logs[0].Error)
}

func TestUpdateHandlerNoBody(t *testing.T) {
	router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{count: 7})

	resp := doRequest(t, router, http.MethodPost, "/update/118", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBadgeHandlerGzipClient(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewMemStorage(ctx)
	require.NoError(t, store.AddSample(ctx, &model.Sample{
		PluginID:  "118",
		Timestamp: time.Now(),
		Count:     121,
	}))
	router := newTestServer(store, &stubFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/118", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"),
		"compressed body must be declared to the client")

	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	defer gr.Close()

	var payload model.BadgePayload
	require.NoError(t, json.NewDecoder(gr).Decode(&payload))
	require.Equal(t, "121", payload.Message)
}

func TestHealthHandler(t *testing.T) {
	router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/health", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestPingHandler(t *testing.T) {
	router := newTestServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{})

	resp := doRequest(t, router, http.MethodGet, "/ping", nil)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateHandlerTrustedSubnet(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedSubnet = "10.0.0.0/8"
	router := srv.NewServer(inmemory.NewMemStorage(context.Background()), &stubFetcher{count: 1}, cfg).Router()

	req := httptest.NewRequest(http.MethodPost, "/update/118", strings.NewReader(""))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/update/118", strings.NewReader(""))
	req.Header.Set("X-Real-IP", "10.1.2.3")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Read endpoints stay public.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
