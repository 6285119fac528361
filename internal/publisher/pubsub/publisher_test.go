package pubsub

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return r.id, r.err
}

type fakeTopic struct {
	msgs []*pubsub.Message
	err  error
}

func (f *fakeTopic) Publish(_ context.Context, msg *pubsub.Message) result {
	f.msgs = append(f.msgs, msg)
	return fakeResult{id: "msg-1", err: f.err}
}

func TestPublishEncodesPayloadAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "run")
	defer span.End()

	topic := &fakeTopic{}
	pub := &Publisher{topic: topic}
	id, err := pub.Publish(ctx, "crawl.completed", map[string]any{"runId": "r1"})
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)

	require.Len(t, topic.msgs, 1)
	require.JSONEq(t, `{"runId":"r1"}`, string(topic.msgs[0].Data))
	require.Equal(t, "crawl.completed", topic.msgs[0].Attributes["event"])
	require.NotEmpty(t, topic.msgs[0].Attributes["traceparent"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	pub := &Publisher{topic: &fakeTopic{err: errors.New("topic not found")}}
	_, err := pub.Publish(context.Background(), "", map[string]any{})
	require.ErrorContains(t, err, "topic not found")

	_, err = pub.Publish(context.Background(), "", make(chan int))
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
	_, _, err = NewClient(context.Background(), "", "")
	require.Error(t, err)
}
