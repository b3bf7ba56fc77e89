package observe_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/pharmaconsult/searchcache/observe"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "searchcache",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none"},
		Logging:     observe.LoggingConfig{Enabled: false},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	fmt.Println("Observer created")
	// Output:
	// Observer created
}

func ExampleConfig_Validate() {
	cfg := observe.Config{ServiceName: "searchcache", Logging: observe.LoggingConfig{Enabled: true, Level: "loud"}}
	err := cfg.Validate()
	fmt.Println(errors.Is(err, observe.ErrInvalidLogLevel))
	// Output:
	// true
}

func ExampleCacheMeta_SpanName() {
	meta := observe.CacheMeta{Cache: "external", Source: "pubmed"}
	fmt.Println(meta.SpanName())
	// Output:
	// searchcache.fetch.external
}

func ExampleMiddleware_Wrap() {
	mw := observe.NewMiddleware(observe.NoopTracer(), observe.NoopMetrics(), observe.NopLogger())

	fetch := mw.Wrap(observe.CacheMeta{Cache: "internal", Source: "internal"}, func(ctx context.Context) (any, error) {
		return "3 documents", nil
	})

	result, err := fetch(context.Background())
	fmt.Println(result, err)
	// Output:
	// 3 documents <nil>
}
