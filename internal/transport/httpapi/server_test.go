package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mepclicker.app/internal/persistence/indexdb"
	"mepclicker.app/internal/sim/tuning"
)

type memSink struct {
	mu   sync.Mutex
	rows []indexdb.TelemetryRow
}

func (m *memSink) RecordTelemetry(r indexdb.TelemetryRow) {
	m.mu.Lock()
	m.rows = append(m.rows, r)
	m.mu.Unlock()
}

func newTestServer(t *testing.T) (*Server, *memSink, *httptest.Server) {
	t.Helper()
	schema, err := LoadTelemetrySchema("../../../schemas")
	require.NoError(t, err)
	sink := &memSink{}
	feats := tuning.Defaults().Features
	s := NewServer(func() tuning.Features { return feats }, schema, sink, nil)
	s.now = func() time.Time { return time.UnixMilli(42) }
	mux := http.NewServeMux()
	s.Register(mux)
	mux.HandleFunc("/healthz", HealthHandler())
	mux.HandleFunc("/metrics", Metrics{API: s}.Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, sink, srv
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHelloAndConfig(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/hello")
	require.NoError(t, err)
	body := decode(t, resp)
	require.Equal(t, "online", body["status"])
	require.EqualValues(t, 42, body["timestamp"])

	resp, err = http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	body = decode(t, resp)
	require.Equal(t, false, body["maintenance"])
	require.Equal(t, "Keep clicking, stay caffeinated!", body["motd"])
	feats := body["features"].(map[string]any)
	require.Equal(t, true, feats["rebirthEnabled"])
	require.Equal(t, true, feats["adminPanelEnabled"])
	require.Equal(t, true, feats["cratesEnabled"])
}

func TestMEPReport(t *testing.T) {
	s, sink, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/mep", "application/json", strings.NewReader(`{"mep":1234.5,"totalMep":9999,"rebirths":2,"sessionId":"abc"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	require.Equal(t, true, body["success"])
	require.Equal(t, 1234.5, body["received"])
	require.Equal(t, "Data received at the edge", body["note"])

	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	require.Equal(t, 1234.5, row.MEP)
	require.Equal(t, 9999.0, row.TotalMEP)
	require.Equal(t, 2, row.Rebirths)
	require.Equal(t, "abc", row.SessionID)

	for _, bad := range []string{`not json`, `{"mep":"lots","totalMep":1}`, `{"totalMep":1}`, `[]`} {
		resp, err := http.Post(srv.URL+"/api/mep", "application/json", strings.NewReader(bad))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, bad)
		require.Equal(t, "Invalid payload", decode(t, resp)["error"])
	}
	require.Len(t, sink.rows, 1)

	resp, err = http.Get(srv.URL + "/api/mep")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	ok, bad := s.Counts()
	require.EqualValues(t, 1, ok)
	require.EqualValues(t, 4, bad)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	require.Contains(t, buf.String(), "mep_api_reports_total 1\n")
	require.Contains(t, buf.String(), "mep_api_reports_invalid_total 4\n")
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
