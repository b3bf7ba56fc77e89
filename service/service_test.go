package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pharmaconsult/searchcache/cache"
	"github.com/pharmaconsult/searchcache/config"
	"github.com/pharmaconsult/searchcache/health"
	"github.com/pharmaconsult/searchcache/observe"
	"github.com/pharmaconsult/searchcache/resilience"
)

type testObserver struct {
	meter     metric.Meter
	logger    observe.Logger
	shutdowns atomic.Int32
}

func (o *testObserver) Tracer() trace.Tracer   { return tracenoop.NewTracerProvider().Tracer("test") }
func (o *testObserver) Meter() metric.Meter    { return o.meter }
func (o *testObserver) Logger() observe.Logger { return o.logger }
func (o *testObserver) Shutdown(context.Context) error {
	o.shutdowns.Add(1)
	return nil
}

type fixture struct {
	svc    *Service[[]string]
	obs    *testObserver
	reader *sdkmetric.ManualReader
	logs   *safeBuffer
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Backends = map[string]resilience.Config{
		"pubmed": {Timeout: time.Second, MaxAttempts: 1, MaxFailures: 2, ResetTimeout: time.Minute},
	}
	return cfg
}

func newFixture(t *testing.T, cfg config.Config, opts ...Option) *fixture {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logs := &safeBuffer{}
	obs := &testObserver{
		meter:  provider.Meter("test"),
		logger: observe.NewLoggerWithWriter("debug", logs),
	}

	svc, err := New[[]string](context.Background(), cfg, append([]Option{WithObserver(obs)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return &fixture{svc: svc, obs: obs, reader: reader, logs: logs}
}

// safeBuffer serializes writes from concurrent loggers.
type safeBuffer struct {
	mu sync.Mutex
	bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.String()
}

// echo returns a backend that reports its source and normalized query.
func echo(source string, calls *atomic.Int32) Backend[[]string] {
	return func(_ context.Context, k cache.KeyComponents) ([]string, error) {
		if calls != nil {
			calls.Add(1)
		}
		return []string{source + ":" + k.Query}, nil
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.External.MaxEntries = -1

	_, err := New[[]string](context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_OwnsObserverFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Observe.Logging.Enabled = false

	svc, err := New[string](context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, svc.ownsObserver)
	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestSearch_RoutesByTier(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Register("PubMed", echo("pubmed", nil)))
	require.NoError(t, f.svc.Register("internal", echo("internal", nil)))
	require.NoError(t, f.svc.Register("aggregated", echo("aggregated", nil)))

	v, err := f.svc.Search(ctx, cache.KeyComponents{Query: "Metformin dosing", Source: "pubmed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pubmed:dosing metformin"}, v)

	_, err = f.svc.Search(ctx, cache.KeyComponents{Query: "formulary policy", Source: "internal"})
	require.NoError(t, err)
	_, err = f.svc.Search(ctx, cache.KeyComponents{Query: "statin trials", Source: "aggregated"})
	require.NoError(t, err)

	stats := f.svc.Stats()
	assert.Equal(t, 1, stats[TierExternal].Entries)
	assert.Equal(t, 2, stats[TierInternal].Entries)
	assert.Equal(t, []string{"aggregated", "internal", "pubmed"}, f.svc.Sources())
}

func TestSearch_CachesResults(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", &calls)))

	for _, q := range []string{"warfarin interactions", "Interactions of WARFARIN"} {
		_, err := f.svc.Search(ctx, cache.KeyComponents{Query: q, Source: "pubmed"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), f.svc.Stats()[TierExternal].Hits)
}

func TestSearch_ConcurrentCallersShareOneFetch(t *testing.T) {
	f := newFixture(t, testConfig())

	release := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, f.svc.Register("pubmed", func(ctx context.Context, k cache.KeyComponents) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{k.Query}, nil
	}))

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Search(context.Background(), cache.KeyComponents{Query: "semaglutide outcomes", Source: "pubmed"})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_UnknownBackend(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.svc.Search(context.Background(), cache.KeyComponents{Query: "anything", Source: "embase"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, err.Error(), "embase")
	assert.Zero(t, f.svc.Stats()[TierExternal].Entries)
}

func TestRegister_NilBackend(t *testing.T) {
	f := newFixture(t, testConfig())
	assert.ErrorIs(t, f.svc.Register("pubmed", nil), ErrNilBackend)
}

func TestSearch_BackendErrorTripsCircuit(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	errUpstream := errors.New("upstream 503")
	var calls atomic.Int32
	require.NoError(t, f.svc.Register("pubmed", func(context.Context, cache.KeyComponents) ([]string, error) {
		calls.Add(1)
		return nil, errUpstream
	}))

	k := cache.KeyComponents{Query: "rare disease registry", Source: "pubmed"}
	for range 2 {
		_, err := f.svc.Search(ctx, k)
		assert.ErrorIs(t, err, errUpstream)
	}

	_, err := f.svc.Search(ctx, k)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, f.svc.Stats()[TierExternal].Entries, "errors are never cached")

	report := f.svc.Health(ctx)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, health.StatusUnhealthy, report.Checks["backend.pubmed"].Status)
	assert.Equal(t, health.StatusHealthy, report.Checks["cache.external"].Status)
	assert.Contains(t, f.logs.String(), "circuit state changed")
}

func TestSearch_BackendPanic(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.svc.Register("pubmed", func(context.Context, cache.KeyComponents) ([]string, error) {
		panic("nil registry response")
	}))

	_, err := f.svc.Search(context.Background(), cache.KeyComponents{Query: "aspirin", Source: "pubmed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrFetchPanicked)
}

func TestSearchDebounced(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 50 * time.Millisecond
	f := newFixture(t, cfg)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", &calls)))

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.SearchDebounced(ctx, "session-7", cache.KeyComponents{Query: "ibupro", Source: "pubmed"})
		first <- err
	}()
	require.Eventually(t, func() bool { return f.svc.external.debouncer.Pending() == 1 }, time.Second, time.Millisecond)

	v, err := f.svc.SearchDebounced(ctx, "session-7", cache.KeyComponents{Query: "ibuprofen", Source: "pubmed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pubmed:ibuprofen"}, v)

	assert.ErrorIs(t, <-first, cache.ErrSuperseded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchDebounced_WithoutDelay(t *testing.T) {
	f := newFixture(t, testConfig())
	require.NoError(t, f.svc.Register("internal", echo("internal", nil)))

	assert.Nil(t, f.svc.internal.debouncer)
	v, err := f.svc.SearchDebounced(context.Background(), "s", cache.KeyComponents{Query: "sop review", Source: "internal"})
	require.NoError(t, err)
	assert.Equal(t, []string{"internal:review sop"}, v)
}

func TestPrewarm(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", nil)))
	require.NoError(t, f.svc.Register("internal", echo("internal", nil)))

	report, err := f.svc.Prewarm(ctx, []cache.KeyComponents{
		{Query: "insulin pricing", Source: "pubmed"},
		{Query: "onboarding guide", Source: "internal"},
		{Query: "adverse events", Source: "fda"},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, cache.PrewarmResult{Success: 1}, report.Internal)
	assert.Equal(t, cache.PrewarmResult{Success: 1, Failed: 1}, report.External)
	assert.Equal(t, 2, report.Success())
	assert.Equal(t, 1, report.Failed())
	assert.Contains(t, f.logs.String(), report.RunID)

	_, ok := f.svc.Store(TierExternal).Get(ctx, cache.KeyComponents{Query: "insulin pricing", Source: "pubmed"})
	assert.True(t, ok)
}

func TestStart_PrewarmsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prewarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`queries:
  - query: covid treatment
    source: pubmed
  - query: quality manual
    source: internal
`), 0o600))

	cfg := testConfig()
	cfg.Prewarm = config.PrewarmConfig{File: path, Concurrency: 2, OnStart: true}
	f := newFixture(t, cfg)

	var calls atomic.Int32
	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", &calls)))
	require.NoError(t, f.svc.Register("internal", echo("internal", &calls)))

	require.NoError(t, f.svc.Start(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, f.svc.Stats()[TierInternal].Entries)
	assert.Equal(t, 1, f.svc.Stats()[TierExternal].Entries)
}

func TestStart_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Prewarm.File = filepath.Join(t.TempDir(), "absent.yaml")
	f := newFixture(t, cfg)

	assert.NoError(t, f.svc.Start(context.Background()))
}

func TestPrewarmFile_Missing(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.svc.PrewarmFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClearSource(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", nil)))
	require.NoError(t, f.svc.Register("fda", echo("fda", nil)))

	for _, k := range []cache.KeyComponents{
		{Query: "label changes", Source: "fda"},
		{Query: "recall notices", Source: "fda"},
		{Query: "meta analysis", Source: "pubmed"},
	} {
		_, err := f.svc.Search(ctx, k)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, f.svc.ClearSource(ctx, "FDA"))
	assert.Equal(t, 1, f.svc.Stats()[TierExternal].Entries)
}

func TestHealth_Healthy(t *testing.T) {
	f := newFixture(t, testConfig())

	report := f.svc.Health(context.Background())
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "cache.internal")
	assert.Contains(t, report.Checks, "cache.external")
	assert.Contains(t, report.Checks, "backend.pubmed")
}

func TestStatsGauges(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", nil)))

	_, err := f.svc.Search(ctx, cache.KeyComponents{Query: "lipid panel", Source: "pubmed"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(ctx, &rm))

	entries := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "searchcache.entries" {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok)
			for _, dp := range gauge.DataPoints {
				name, _ := dp.Attributes.Value(attribute.Key("cache.name"))
				entries[name.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{TierInternal: 0, TierExternal: 1}, entries)
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	require.NoError(t, f.svc.Register("pubmed", echo("pubmed", nil)))

	require.NoError(t, f.svc.Shutdown(ctx))
	require.NoError(t, f.svc.Shutdown(ctx))

	_, err := f.svc.Search(ctx, cache.KeyComponents{Query: "anything", Source: "pubmed"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.svc.Prewarm(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Zero(t, f.obs.shutdowns.Load(), "a supplied observer stays with the caller")
}

func TestIsInternalSource(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"internal", true},
		{"Aggregated", true},
		{"", true},
		{"all", true},
		{"pubmed", false},
		{"clinicaltrials", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInternalSource(tt.source))
		})
	}
}
