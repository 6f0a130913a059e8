package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cchalm/chatwidget/internal/ai"
)

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func sendAndWait(t *testing.T, s *ai.Session, text string) ai.Settlement {
	t.Helper()
	req, err := s.Send(context.Background(), text, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := req.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestSessionSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p := NewProviderWithSpanProcessor(recorder, "test", zerolog.Nop())
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	sender := ai.SenderFunc(func(ctx context.Context, history []ai.Turn, _ ai.ChunkFunc) (ai.Reply, error) {
		if len(history) > 1 {
			return ai.Reply{}, &ai.TransportError{StatusCode: 500, Message: "quota exceeded"}
		}
		return ai.Reply{Text: "Hi", Found: true}, nil
	})
	session := ai.NewSession(sender, ai.WithTracer(p.Tracer()))

	sendAndWait(t, session, "Hello")
	sendAndWait(t, session, "Again")

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "chat.send", spans[0].Name())
	outcome, ok := attrValue(spans[0].Attributes(), "chat.outcome")
	require.True(t, ok)
	assert.Equal(t, "completed", outcome.AsString())
	turns, ok := attrValue(spans[0].Attributes(), "chat.turns")
	require.True(t, ok)
	assert.Equal(t, int64(1), turns.AsInt64())
	sessionID, ok := attrValue(spans[0].Attributes(), "chat.session_id")
	require.True(t, ok)
	assert.Equal(t, session.ID(), sessionID.AsString())

	outcome, _ = attrValue(spans[1].Attributes(), "chat.outcome")
	assert.Equal(t, "failed", outcome.AsString())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "quota exceeded", spans[1].Status().Description)
}

func TestDisabledProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}
