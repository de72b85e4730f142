package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus wraps an InProcessBus and additionally publishes every message
// to a Google Cloud Pub/Sub topic for durable, cross-process delivery.
//
// Fan-out strategy:
//   - Pub/Sub: durable, at-least-once delivery to any out-of-process
//     consumer (e.g. a fleet dashboard running outside this coordinator).
//   - In-process: immediate delivery to this coordinator's own processor
//     tasks, which never wait on the network.
//
// The in-process path is authoritative for the hot path: the pipeline
// keeps functioning end to end even when the broker is unavailable, so
// Pub/Sub publish failures are logged and swallowed, never
// propagated to the caller.
type PubSubBus struct {
	*InProcessBus

	client *pubsub.Client
	topics map[string]*pubsub.Topic
	logger *log.Logger
}

// NewPubSubBus creates a Pub/Sub-backed bus. Topics are created lazily per
// bus topic name on first publish, to avoid provisioning nine GCP topics up
// front for a bus that may only ever use a handful.
func NewPubSubBus(projectID string) (*PubSubBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	b := &PubSubBus{
		InProcessBus: NewInProcessBus(),
		client:       client,
		topics:       make(map[string]*pubsub.Topic),
		logger:       log.New(log.Writer(), "[BUS-PUBSUB] ", log.LstdFlags),
	}
	b.logger.Printf("connected to Pub/Sub project %s", projectID)
	return b, nil
}

// Publish fans out to Pub/Sub (best-effort, async) and to in-process
// subscribers (synchronous, authoritative).
func (b *PubSubBus) Publish(topic string, payload []byte) {
	b.publishToPubSub(topic, payload)
	b.InProcessBus.Publish(topic, payload)
}

func (b *PubSubBus) publishToPubSub(topicName string, payload []byte) {
	t, err := b.topicFor(topicName)
	if err != nil {
		b.logger.Printf("topic %q unavailable, skipping durable publish: %v", topicName, err)
		return
	}

	result := t.Publish(context.Background(), &pubsub.Message{Data: payload})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := result.Get(ctx); err != nil {
			b.logger.Printf("publish to %q failed: %v", topicName, err)
		}
	}()
}

func (b *PubSubBus) topicFor(topicName string) (*pubsub.Topic, error) {
	b.mu.RLock()
	t, ok := b.topics[topicName]
	b.mu.RUnlock()
	if ok {
		return t, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[topicName]; ok {
		return t, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t = b.client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		t, err = b.client.CreateTopic(ctx, topicName)
		if err != nil {
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
	}
	b.topics[topicName] = t
	return t, nil
}

// Close stops all Pub/Sub topics, closes the client, then closes the
// in-process bus.
func (b *PubSubBus) Close() {
	b.mu.RLock()
	for _, t := range b.topics {
		t.Stop()
	}
	b.mu.RUnlock()

	if err := b.client.Close(); err != nil {
		b.logger.Printf("client close error: %v", err)
	}
	b.InProcessBus.Close()
}

var _ Bus = (*PubSubBus)(nil)
