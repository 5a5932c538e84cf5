package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/config"
)

func TestInitWithoutExporter(t *testing.T) {
	shutdown, err := Init(config.TracingConfig{ServiceName: "commerce-test", SampleRatio: 1})
	require.NoError(t, err)
	defer shutdown(context.Background())

	assert.Empty(t, TraceID(context.Background()))

	ctx, span := Tracer().Start(context.Background(), "op")
	defer span.End()
	assert.Len(t, TraceID(ctx), 32)
}
