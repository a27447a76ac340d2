package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"scout/internal/bridge"
	"scout/internal/collector"
	"scout/internal/linkcheck"
	"scout/internal/reporter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type host struct {
	bridge *bridge.Bridge
	rep    *reporter.Reporter
	srv    *httptest.Server
}

func newHost(t *testing.T, bopts []bridge.Option, sopts ...Option) *host {
	t.Helper()
	rep := reporter.New(t.TempDir(), reporter.DefaultFile)
	b := bridge.New(collector.New(), rep, linkcheck.New(), bopts...)
	srv := httptest.NewServer(NewServer(b, sopts...))
	t.Cleanup(srv.Close)
	return &host{bridge: b, rep: rep, srv: srv}
}

func (h *host) post(t *testing.T, task, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(h.srv.URL+"/tasks/"+task, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(data))
}

func TestTasks_LogGetSave(t *testing.T) {
	h := newHost(t, nil)

	status, body := h.post(t, "ai:log", `{"kind":"step","payload":{"name":"testStart"}}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "null", body)

	h.post(t, "ai:log", `{"kind":"anomaly","payload":{"anomalyType":"slow_page","severity":"high"}}`)
	h.post(t, "ai:log", `{"kind":"step","payload":{"name":"testEnd"}}`)

	status, body = h.post(t, "ai:get", "")
	require.Equal(t, http.StatusOK, status)
	var snap collector.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, uint64(3), snap.Tests[2].Seq)

	status, body = h.post(t, "ai:save", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"path":"`+h.rep.Path()+`"}`, body)
	_, err := os.Stat(h.rep.Path())
	assert.NoError(t, err)
}

func TestTasks_Disabled(t *testing.T) {
	h := newHost(t, []bridge.Option{bridge.WithEnabled(false)})

	_, body := h.post(t, "ai:log", `{"kind":"step"}`)
	assert.Equal(t, "null", body)
	_, body = h.post(t, "ai:get", "")
	assert.JSONEq(t, `{"tests":[]}`, body)
	_, body = h.post(t, "ai:save", "")
	assert.Equal(t, "null", body)

	_, err := os.Stat(h.rep.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestTasks_CheckLinks(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer site.Close()
	h := newHost(t, nil)

	status, body := h.post(t, "ai:checkLink", `"`+site.URL+`/about"`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"href":"`+site.URL+`/about","status":200}`, body)

	status, body = h.post(t, "ai:checkLink", `{"url":"`+site.URL+`/gone"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":410`)

	status, body = h.post(t, "ai:checkLinks", `["`+site.URL+`/a","`+site.URL+`/gone","http://127.0.0.1:1/closed"]`)
	require.Equal(t, http.StatusOK, status)
	var results []linkcheck.Result
	require.NoError(t, json.Unmarshal([]byte(body), &results))
	require.Len(t, results, 3)
	assert.Equal(t, 200, results[0].Status)
	assert.Equal(t, 410, results[1].Status)
	assert.NotEmpty(t, results[2].Error)
}

func TestTasks_Errors(t *testing.T) {
	h := newHost(t, nil)

	status, body := h.post(t, "ai:teleport", "{}")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "unknown task")

	status, body = h.post(t, "ai:checkLink", `12`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "bad task argument")
}

func TestTasks_BodyLimit(t *testing.T) {
	h := newHost(t, nil, WithMaxPayloadBytes(64))

	status, _ := h.post(t, "ai:log", `{"kind":"step","payload":{"name":"`+strings.Repeat("x", 200)+`"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, 0, h.bridge.Get(context.Background()).Len())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHost(t, nil)
	h.post(t, "ai:log", `{"kind":"error","payload":{"message":"boom"}}`)

	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "healthy", health["status"])

	resp, err = http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(data), `scout_events_ingested_total{kind="error"}`)
}

func TestClientAgainstServer(t *testing.T) {
	h := newHost(t, nil)
	c := bridge.NewClient(h.srv.URL)
	ctx := context.Background()

	c.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testStart"}}`))
	c.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testEnd"}}`))

	snap := c.Get(ctx)
	require.Equal(t, 2, snap.Len())
	res := c.Save(ctx)
	assert.Equal(t, h.rep.Path(), res.Path)
}
