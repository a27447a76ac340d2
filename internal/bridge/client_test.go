package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scout/internal/collector"
	"scout/internal/core"
	"scout/internal/reporter"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taskServer exposes ch over a minimal task endpoint.
func taskServer(t *testing.T, ch Channel) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		task := strings.TrimPrefix(r.URL.Path, "/tasks/")
		arg, _ := io.ReadAll(r.Body)
		out, err := Dispatch(r.Context(), ch, task, arg)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrUnknownTask) {
				status = http.StatusNotFound
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RoundTrip(t *testing.T) {
	host := New(collector.New(), reporter.New(t.TempDir(), ""), &fakeChecker{})
	c := NewClient(taskServer(t, host).URL + "/")
	ctx := context.Background()

	c.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testStart"}}`))
	c.Log(ctx, []byte(`{"kind":"performance","payload":{"load":1234}}`))

	snap := c.Get(ctx)
	require.Equal(t, 2, snap.Len())
	p, ok := snap.Tests[1].Performance()
	require.True(t, ok)
	assert.Equal(t, 1234.0, p.ValueMs)

	res := c.Save(ctx)
	assert.True(t, res.OK(), res.Error)

	link := c.CheckLink(ctx, "https://example.com")
	assert.Equal(t, 200, link.Status)

	links := c.CheckLinks(ctx, []string{"a", "b", "c"})
	require.Len(t, links, 3)
	assert.Equal(t, "c", links[2].Href)
}

func TestClient_DisabledHostGivesNeutralValues(t *testing.T) {
	host := New(collector.New(), reporter.New(t.TempDir(), ""), &fakeChecker{}, WithEnabled(false))
	c := NewClient(taskServer(t, host).URL)
	ctx := context.Background()

	c.Log(ctx, []byte(`{"kind":"step"}`))
	assert.Equal(t, 0, c.Get(ctx).Len())
	assert.True(t, c.Save(ctx).IsZero())
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Log(ctx, []byte(`{}`)) })
	assert.Equal(t, 0, c.Get(ctx).Len())

	res := c.Save(ctx)
	assert.False(t, res.OK())
	assert.NotEmpty(t, res.Error)

	link := c.CheckLink(ctx, "https://example.com")
	assert.Equal(t, "https://example.com", link.Href)
	assert.NotEmpty(t, link.Error)

	links := c.CheckLinks(ctx, []string{"a", "b"})
	require.Len(t, links, 2)
	for _, l := range links {
		assert.NotEmpty(t, l.Error)
	}
}

func TestClient_ServerErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"collector offline"}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Save(context.Background())
	assert.Contains(t, res.Error, "collector offline")
}

func TestClient_TimeoutIsLoggedAndSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	var out core.MockWriter
	log := logrus.New()
	log.SetOutput(&out)

	c := NewClient(srv.URL,
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
		WithClientLogger(log),
	)
	ctx := context.Background()

	c.Log(ctx, []byte(`{"kind":"step"}`))
	assert.Contains(t, out.String(), "log call failed")
	assert.Contains(t, out.String(), "task=\"ai:log\"")

	res := c.Save(ctx)
	assert.NotEmpty(t, res.Error)
}
