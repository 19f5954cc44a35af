package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/country-directory/internal/config"
	"github.com/JakeFAU/country-directory/internal/country"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		Server:    config.ServerConfig{Port: 0},
		Directory: config.DirectoryConfig{BaseURL: baseURL, UserAgent: "countryd-test", RequestTimeoutSeconds: 2},
		Crawler:   config.CrawlerConfig{Workers: 2, QueueDepth: 4, DelayMs: 0, DispatchTimeoutMs: 500},
		Lookup:    config.LookupConfig{TimeoutSeconds: 3, PollIntervalMs: 10},
		Telemetry: config.TelemetryConfig{ServiceName: "countryd-test", ServiceVersion: "test"},
	}
}

func newDirectory(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/name/Poland" {
			_, _ = w.Write([]byte(`[{"name":{"common":"Poland"},"region":"Europe"}]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"message":"Not Found"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAppLookupThroughEngine(t *testing.T) {
	srv := newDirectory(t)
	ctx := context.Background()

	a, err := Build(ctx, testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	require.ErrorIs(t, a.Ready(), ErrEngineStopped)

	a.Start(ctx)
	require.NoError(t, a.Ready())

	name := "Poland"
	records, err := a.Lookup(ctx, country.Query{Name: &name})
	require.NoError(t, err)
	require.Len(t, records, 1)

	missing := "Atlantis"
	_, err = a.Lookup(ctx, country.Query{Name: &missing})
	var failure *country.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, http.StatusNotFound, failure.Status)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(closeCtx))
	require.ErrorIs(t, a.Ready(), ErrEngineStopped)
}

func TestAppHandlerServesCountries(t *testing.T) {
	srv := newDirectory(t)
	ctx := context.Background()

	a, err := Build(ctx, testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)
	a.Start(ctx)
	defer func() { _ = a.Close(ctx) }()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries?name=Poland", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Poland"`)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAppServeStopsOnCancel(t *testing.T) {
	srv := newDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())

	a, err := Build(ctx, testConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.Ready() == nil }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSetupTraceExportSkippedWithoutProject(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	a := &App{cfg: testConfig("http://127.0.0.1:1"), logger: zap.New(core)}

	opts, err := setupTraceExport(a)
	require.NoError(t, err)
	require.Empty(t, opts)
	require.Equal(t, 1, logs.FilterMessage("No telemetry project configured, spans are not exported").Len())
}
