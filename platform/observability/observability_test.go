package observability

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestKafkaCarrier_RoundTrip(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var msg kafka.Message
	InjectKafka(ctx, &msg)
	require.NotEmpty(t, msg.Headers)

	extracted := trace.SpanContextFromContext(ExtractKafka(context.Background(), msg))
	require.Equal(t, traceID, extracted.TraceID())
	require.Equal(t, spanID, extracted.SpanID())
}

func TestL_PrefersContextLogger(t *testing.T) {
	base := zap.NewNop()
	ctxLogger := zap.NewExample()

	require.Same(t, base, L(context.Background(), base))
	require.Same(t, ctxLogger, L(WithLogger(context.Background(), ctxLogger), base))
}
