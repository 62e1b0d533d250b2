package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/gorfid/rdm"
	"lautenbacher.net/gorfid/scanner"
	"lautenbacher.net/gorfid/util"
)

type fakeScans struct {
	history []util.ScanEvent
	latest  *util.AtomicEvent[util.ScanEvent]
	stats   scanner.Stats
}

func (f *fakeScans) History() []util.ScanEvent                 { return f.history }
func (f *fakeScans) Latest() *util.AtomicEvent[util.ScanEvent] { return f.latest }
func (f *fakeScans) Stats() scanner.Stats                      { return f.stats }

var door = rdm.Tag{ID: [rdm.TagLength]byte{0x14, 0x00, 0x8E, 0xC7, 0x93}}

func newFakeScans() *fakeScans {
	return &fakeScans{latest: util.NewAtomicEvent[util.ScanEvent]()}
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestScans(t *testing.T) {
	scans := newFakeScans()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scans.history = []util.ScanEvent{*util.NewScanEvent(door, "front door", true, ts)}
	s := NewServer(":0", scans, "config.yml")

	rr := serve(t, s, http.MethodGet, "/api/scans")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"tag":"14008EC793","label":"front door","known":true,"timestamp":"2024-01-01T00:00:00Z"}]`, rr.Body.String())
}

func TestLatest(t *testing.T) {
	scans := newFakeScans()
	s := NewServer(":0", scans, "config.yml")

	rr := serve(t, s, http.MethodGet, "/api/scans/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	scans.latest.Send(*util.NewScanEvent(door, "", false, time.Now()))
	rr = serve(t, s, http.MethodGet, "/api/scans/latest")
	assert.Equal(t, http.StatusOK, rr.Code)

	var ev util.ScanEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	assert.Equal(t, door, ev.Tag)
}

func TestStats(t *testing.T) {
	scans := newFakeScans()
	scans.stats = scanner.Stats{Accepted: 3, ChecksumErrors: 1}
	s := NewServer(":0", scans, "config.yml")

	rr := serve(t, s, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var stats scanner.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, uint64(3), stats.Accepted)
	assert.Equal(t, uint64(1), stats.ChecksumErrors)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", newFakeScans(), "config.yml")
	rr := serve(t, s, http.MethodPost, "/api/scans")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestConfigRoute(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte("Tags:\n  \"14008EC793\": door\n"), 0o644))
	s := NewServer(":0", newFakeScans(), cfile)

	rr := serve(t, s, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"14008EC793":"door"`)
}

func TestStartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", newFakeScans(), "config.yml")
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0", newFakeScans(), "config.yml").router)
	defer srv.Close()

	resp, err := http.Get(fmt.Sprintf("%s/healthz", srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

type brokenResponseWriter struct {
	header http.Header
	code   int
}

func (b *brokenResponseWriter) Header() http.Header { return b.header }
func (b *brokenResponseWriter) WriteHeader(code int) { b.code = code }
func (b *brokenResponseWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestHealth_WriteErrorIsLogged(t *testing.T) {
	var logs bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	s := NewServer(":0", newFakeScans(), "config.yml")
	w := &brokenResponseWriter{header: http.Header{}}
	s.getHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.code)
	assert.Contains(t, logs.String(), "Failed to write health response")
	assert.Contains(t, logs.String(), "connection reset")
}
