package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTracingBridge(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	bridge := NewWatermillBridge(WithTracer(tp.Tracer("test")))
	defer bridge.Close()

	handled := make(chan struct{}, 1)
	off := bridge.On("new_message", func(ctx context.Context, msg Message) error {
		handled <- struct{}{}
		return nil
	})
	defer off()

	err := bridge.Publish(context.Background(), Message{Topic: "new_message", Payload: []byte(`{"id":"m1"}`)})
	require.NoError(t, err)
	<-handled

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "pubsub.publish.new_message")
	assert.Contains(t, names, "pubsub.process.new_message")
}

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, DefaultTracingConfig())
		require.NoError(t, err)
		require.NotNil(t, tracer)

		_, span := tracer.Start(ctx, "test")
		span.End()
		cleanup()
	})

	t.Run("enabled tracing with unreachable collector", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, TracingConfig{
			Enabled:     true,
			ServiceName: "test-service",
			ZipkinURL:   "http://invalid-url:9411/api/v2/spans",
		})
		require.NoError(t, err)
		require.NotNil(t, tracer)
		cleanup()
	})
}
