package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Exporter: ExporterStdout}.Validate())
	assert.Error(t, Config{Exporter: "zipkin"}.Validate())
}

// Not parallel: installs the global tracer provider.
func TestInitTracerProviderStdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	tp, err := InitTracerProvider(ctx, Config{Enabled: true, ServiceName: "crawl-test", Exporter: ExporterStdout}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "crawler.fetch")
	span.End()
	require.NoError(t, Shutdown(ctx, tp))

	assert.Contains(t, buf.String(), "crawler.fetch")
	assert.Contains(t, buf.String(), "crawl-test")
}

func TestInitTracerProviderRejectsUnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := InitTracerProvider(context.Background(), Config{Exporter: "zipkin"}, nil)
	require.Error(t, err)
}

func TestShutdownNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Shutdown(context.Background(), nil))
}
