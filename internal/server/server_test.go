package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmy443dd/S-675-Scrapper/internal/config"
	"github.com/jimmy443dd/S-675-Scrapper/internal/metrics"
	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
	"github.com/jimmy443dd/S-675-Scrapper/internal/scanner"
	"github.com/jimmy443dd/S-675-Scrapper/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type blockingTokens struct {
	release chan struct{}
}

func (b *blockingTokens) ObtainTokens(ctx context.Context, domain string) (*model.TokenContext, error) {
	<-b.release
	return &model.TokenContext{BaseURL: "https://" + domain}, nil
}

type staticTester struct{}

func (staticTester) RunAllTests(ctx context.Context, domain string, tokens *model.TokenContext) (*model.ScanResult, error) {
	return &model.ScanResult{
		Target:          tokens.BaseURL,
		ExtractedEmails: []string{"admin@" + domain},
		Findings: []model.Finding{
			{Type: "Missing Content-Security-Policy", Severity: model.SeverityMedium, Endpoint: tokens.BaseURL},
		},
	}, nil
}

type errStarter struct{ err error }

func (e errStarter) StartScan(ctx context.Context, domain string) (string, error) {
	return "", e.err
}

func serverConfig() config.ServerConfig {
	return config.ServerConfig{Port: "0", CORSOrigins: []string{"*"}, ShutdownTimeout: time.Second}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) model.ScanStatus {
	t.Helper()

	require.Equal(t, http.StatusOK, rec.Code)
	var status model.ScanStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestScanLifecycleEndToEnd(t *testing.T) {
	st := store.New()
	tokens := &blockingTokens{release: make(chan struct{})}
	ctrl := scanner.NewController(st, tokens, staticTester{})
	h := New(serverConfig(), st, ctrl, t.TempDir(), nil).Handler()

	status := decodeStatus(t, do(t, h, http.MethodGet, "/status", ""))
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.Results)

	rec := do(t, h, http.MethodPost, "/scan", `{"domain":"example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var started model.ScanStartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "Scan started", started.Message)
	assert.NotEmpty(t, started.ScanID)

	status = decodeStatus(t, do(t, h, http.MethodGet, "/status", ""))
	assert.True(t, status.IsRunning)
	assert.Equal(t, started.ScanID, status.ScanID)

	rec = do(t, h, http.MethodPost, "/scan", `{"domain":"other.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Scan already running"}`, rec.Body.String())

	close(tokens.release)
	ctrl.Wait()

	status = decodeStatus(t, do(t, h, http.MethodGet, "/status", ""))
	assert.False(t, status.IsRunning)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, scanner.TaskComplete, status.CurrentTask)
	require.NotNil(t, status.Results)
	assert.Equal(t, []string{"admin@example.com"}, status.Results.ExtractedEmails)
	require.Len(t, status.Results.Findings, 1)
	assert.Equal(t, model.SeverityMedium, status.Results.Findings[0].Severity)
	assert.Nil(t, status.LastError)
}

func TestStartScanBadRequest(t *testing.T) {
	st := store.New()
	ctrl := scanner.NewController(st, &blockingTokens{}, staticTester{})
	h := New(serverConfig(), st, ctrl, t.TempDir(), nil).Handler()

	for _, body := range []string{`{}`, `{"domain":"   "}`, `not json`} {
		rec := do(t, h, http.MethodPost, "/scan", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Domain is required"}`, rec.Body.String(), body)
	}

	assert.False(t, st.Snapshot().IsRunning)
}

func TestStartScanUnexpectedError(t *testing.T) {
	h := New(serverConfig(), store.New(), errStarter{err: errors.New("boom")}, t.TempDir(), nil).Handler()

	rec := do(t, h, http.MethodPost, "/scan", `{"domain":"example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDownloadReport(t *testing.T) {
	dir := t.TempDir()
	h := New(serverConfig(), store.New(), errStarter{}, dir, nil).Handler()

	rec := do(t, h, http.MethodGet, "/download-report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No reports found"}`, rec.Body.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "r1.json"), []byte(`{"n":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r3.json"), []byte(`{"n":3}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "r2.json"), []byte(`{"n":2}`), 0o644))

	rec = do(t, h, http.MethodGet, "/download-report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"n":3}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="r3.json"`)
}

func TestDownloadReportMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	h := New(serverConfig(), store.New(), errStarter{}, dir, nil).Handler()

	rec := do(t, h, http.MethodGet, "/download-report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardHealthAndMetrics(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	h := New(serverConfig(), store.New(), errStarter{}, t.TempDir(), m).Handler()

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "extractedEmails")

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scansuite_")
}

func TestCORSPreflight(t *testing.T) {
	h := New(serverConfig(), store.New(), errStarter{}, t.TempDir(), nil).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/scan", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := serverConfig()
	cfg.Host = "127.0.0.1"
	s := New(cfg, store.New(), errStarter{}, t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
