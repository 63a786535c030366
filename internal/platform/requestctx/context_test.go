package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContextRoundTrips(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Same(t, NoopLogger(), Logger(ctx))
	require.Empty(t, TraceID(ctx))
	require.Empty(t, Operator(ctx))

	logger := zap.NewExample()
	ctx = WithLogger(ctx, logger)
	ctx = WithTrace(ctx, TraceInfo{TraceID: "abc", ProjectID: "hf"})
	ctx = WithOperator(ctx, "op-1")

	require.Same(t, logger, Logger(ctx))
	require.Equal(t, "abc", TraceID(ctx))
	require.Equal(t, "op-1", Operator(ctx))
	require.Same(t, NoopLogger(), Logger(WithLogger(ctx, nil)))
}
