// Package pubsub publishes run reports to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
)

// result is the part of *pubsub.PublishResult the publisher waits on.
type result interface {
	Get(ctx context.Context) (string, error)
}

// topic abstracts *pubsub.Topic so tests can substitute it.
type topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) result
}

type gcpTopic struct {
	t *pubsub.Topic
}

func (g gcpTopic) Publish(ctx context.Context, msg *pubsub.Message) result {
	return g.t.Publish(ctx, msg)
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic topic
}

// New creates a Publisher for the provided topic.
func New(t *pubsub.Topic) (*Publisher, error) {
	if t == nil {
		return nil, errors.New("pubsub topic is required")
	}
	return &Publisher{topic: gcpTopic{t: t}}, nil
}

// NewClient opens a Pub/Sub client and returns a publisher for topicID.
func NewClient(ctx context.Context, projectID, topicID string) (*Publisher, func() error, error) {
	if projectID == "" || topicID == "" {
		return nil, nil, errors.New("publisher.project_id and publisher.topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	t := client.Topic(topicID)
	closer := func() error {
		t.Stop()
		return client.Close()
	}
	pub, err := New(t)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return pub, closer, nil
}

// Publish marshals the payload to JSON and publishes it. The topic argument is
// informational; messages go to the configured topic. Trace context travels in
// the message attributes.
func (p *Publisher) Publish(ctx context.Context, topicName string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	if topicName != "" {
		msg.Attributes["event"] = topicName
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
