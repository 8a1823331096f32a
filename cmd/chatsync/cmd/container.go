package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/auth"
	"github.com/nfrund/chatsync/internal/config"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
	"github.com/nfrund/chatsync/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// tracing owns the tracer provider so the injector can flush it on shutdown.
type tracing struct {
	tracer trace.Tracer
	stop   func()
}

func (t *tracing) Shutdown() { t.stop() }

// newContainer registers lazy providers for every service a command may need.
// Nothing is built until a command invokes it.
func newContainer(ctx context.Context, c *config.Config) do.Injector {
	i := do.New()

	do.ProvideValue(i, c)
	do.Provide(i, func(do.Injector) (*slog.Logger, error) {
		return slog.Default(), nil
	})
	do.Provide(i, func(do.Injector) (*prometheus.Registry, error) {
		return prometheus.NewRegistry(), nil
	})
	do.Provide(i, func(i do.Injector) (*metrics.Metrics, error) {
		return metrics.New(do.MustInvoke[*prometheus.Registry](i)), nil
	})
	do.Provide(i, func(i do.Injector) (*tracing, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tracer, stop, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
			Enabled:     cfg.TracingEnabled,
			ServiceName: cfg.TracingServiceName,
			ZipkinURL:   cfg.TracingZipkinURL,
		})
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		return &tracing{tracer: tracer, stop: stop}, nil
	})
	do.Provide(i, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		t, err := do.Invoke[*tracing](i)
		if err != nil {
			return nil, err
		}
		return pubsub.NewWatermillBridge(
			pubsub.WithTracer(t.tracer),
			pubsub.WithLogger(do.MustInvoke[*slog.Logger](i)),
		), nil
	})
	do.Provide(i, func(i do.Injector) (*auth.Tokens, error) {
		return auth.NewTokens(do.MustInvoke[*config.Config](i).JWTSecret, auth.DefaultTTL), nil
	})
	do.Provide(i, func(i do.Injector) (*api.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if err := cfg.RequireSession(); err != nil {
			return nil, err
		}
		return api.New(cfg.APIURL, cfg.Token,
			api.WithTimeout(cfg.HTTPTimeout),
			api.WithLogger(do.MustInvoke[*slog.Logger](i).With("component", "api")),
		), nil
	})
	do.Provide(i, func(i do.Injector) (*realtime.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if err := cfg.RequireSession(); err != nil {
			return nil, err
		}
		bus, err := do.Invoke[*pubsub.WatermillBridge](i)
		if err != nil {
			return nil, err
		}
		return realtime.New(cfg.WSURL, cfg.Token, bus,
			realtime.WithLogger(do.MustInvoke[*slog.Logger](i).With("component", "realtime")),
			realtime.WithMetrics(do.MustInvoke[*metrics.Metrics](i)),
		), nil
	})
	return i
}

func shutdownContainer(i do.Injector) {
	if i == nil {
		return
	}
	i.Shutdown()
}
