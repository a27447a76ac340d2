package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scout/internal/collector"
	"scout/internal/core"
	"scout/internal/linkcheck"
	"scout/internal/reporter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	calls []string
}

func (f *fakeChecker) Check(_ context.Context, url string) linkcheck.Result {
	f.calls = append(f.calls, url)
	return linkcheck.Result{Href: url, Status: 200}
}

func (f *fakeChecker) CheckAll(_ context.Context, urls []string) []linkcheck.Result {
	out := make([]linkcheck.Result, len(urls))
	for i, u := range urls {
		f.calls = append(f.calls, u)
		out[i] = linkcheck.Result{Href: u, Status: 204}
	}
	return out
}

type panickingStore struct {
	*collector.Collector
}

func (panickingStore) Append(core.Event) core.Event { panic("append exploded") }

type failingPersister struct{}

func (failingPersister) Persist(context.Context, collector.Snapshot) reporter.Result {
	return reporter.Result{Err: errors.New("no space left on device")}
}

func newHost(t *testing.T, opts ...Option) (*Bridge, *reporter.Reporter) {
	t.Helper()
	clock := core.NewTickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	rep := reporter.New(filepath.Join(t.TempDir(), "reports", "ai-insights"), reporter.DefaultFile)
	return New(collector.New(collector.WithClock(clock)), rep, &fakeChecker{}, opts...), rep
}

func TestBridge_LogAppends(t *testing.T) {
	b, _ := newHost(t)
	ctx := context.Background()

	b.Log(ctx, []byte(`{"kind":"step","test":{"title":"login","titlePath":["parabank","login"]},"payload":{"name":"open"}}`))
	b.Log(ctx, []byte(`{"type":"anomaly","anomalyType":"slow_page","message":"7s"}`))

	snap := b.Get(ctx)
	require.Equal(t, 2, snap.Len())

	s, ok := snap.Tests[0].Step()
	require.True(t, ok)
	assert.Equal(t, "open", s.Name)
	assert.Equal(t, 1, s.StepNumber)
	assert.Equal(t, "parabank > login", snap.Tests[0].Test.Key())

	a, ok := snap.Tests[1].Anomaly()
	require.True(t, ok)
	assert.Equal(t, core.SeverityMedium, a.Severity)
	assert.Equal(t, uint64(2), snap.Tests[1].Seq)
}

func TestBridge_LogMalformedStoredOpaque(t *testing.T) {
	b, _ := newHost(t)
	ctx := context.Background()

	b.Log(ctx, []byte(`not json at all`))
	b.Log(ctx, nil)

	snap := b.Get(ctx)
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, core.KindUnknown, snap.Tests[0].Kind)
	_, opaque := snap.Tests[0].Payload.(core.OpaquePayload)
	assert.True(t, opaque)
}

func TestBridge_LogSwallowsPanics(t *testing.T) {
	rep := reporter.New(t.TempDir(), reporter.DefaultFile)
	b := New(panickingStore{collector.New()}, rep, nil)

	assert.NotPanics(t, func() {
		b.Log(context.Background(), []byte(`{"kind":"step","payload":{"name":"x"}}`))
	})
}

func TestBridge_ExampleScenario(t *testing.T) {
	b, rep := newHost(t)
	ctx := context.Background()

	b.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testStart"}}`))
	b.Log(ctx, []byte(`{"kind":"anomaly","payload":{"anomalyType":"slow_page","message":"slow","severity":"high"}}`))
	b.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testEnd"}}`))

	res := b.Save(ctx)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, rep.Path(), res.Path)

	saved, err := reporter.Load(res.Path)
	require.NoError(t, err)
	require.Equal(t, 3, saved.Len())
	for i, e := range saved.Tests {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
	assert.Equal(t, core.KindAnomaly, saved.Tests[1].Kind)
	end, _ := saved.Tests[2].Step()
	assert.Equal(t, "testEnd", end.Name)
}

func TestBridge_SaveTwiceIsByteIdentical(t *testing.T) {
	b, _ := newHost(t)
	ctx := context.Background()
	b.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testStart"}}`))

	first := b.Save(ctx)
	a, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	second := b.Save(ctx)
	bb, err := os.ReadFile(second.Path)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(bb))
}

func TestBridge_SaveFailureIsAValue(t *testing.T) {
	b := New(collector.New(), failingPersister{}, nil)

	res := b.Save(context.Background())
	assert.False(t, res.OK())
	assert.Equal(t, "no space left on device", res.Error)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"no space left on device"}`, string(data))
}

func TestBridge_Disabled(t *testing.T) {
	b, rep := newHost(t, WithEnabled(false))
	ctx := context.Background()

	_, err := os.Stat(rep.Path())
	require.True(t, os.IsNotExist(err))

	b.Log(ctx, []byte(`{"kind":"step","payload":{"name":"testStart"}}`))
	assert.Equal(t, 0, b.Get(ctx).Len())

	res := b.Save(ctx)
	assert.True(t, res.IsZero())
	data, _ := json.Marshal(res)
	assert.Equal(t, "null", string(data))

	_, err = os.Stat(rep.Path())
	assert.True(t, os.IsNotExist(err), "disabled telemetry must not write the artifact")
	_, err = os.Stat(filepath.Dir(rep.Path()))
	assert.True(t, os.IsNotExist(err), "disabled telemetry must not create the report directory")
}

func TestBridge_DisabledStillChecksLinks(t *testing.T) {
	checker := &fakeChecker{}
	b := New(collector.New(), reporter.New(t.TempDir(), ""), checker, WithEnabled(false))

	res := b.CheckLink(context.Background(), "https://example.com")
	assert.Equal(t, 200, res.Status)
	assert.Len(t, b.CheckLinks(context.Background(), []string{"a", "b"}), 2)
	assert.Equal(t, []string{"https://example.com", "a", "b"}, checker.calls)
}

func TestSaveResult_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   SaveResult
		want string
	}{
		{"path", SaveResult{Path: "reports/ai-insights/latest-report.json"}, `{"path":"reports/ai-insights/latest-report.json"}`},
		{"error", SaveResult{Error: "permission denied"}, `{"error":"permission denied"}`},
		{"neutral", SaveResult{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))

			var back SaveResult
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.in, back)
		})
	}
}
