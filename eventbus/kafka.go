// Package eventbus publishes leadership-change notifications to Kafka so
// downstream consumers can react to a new leader without polling
// ZooKeeper or Nacos themselves.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/mlindqvist/zkdistributed/logger"
)

// LeaderChangeTopic is the default topic leader-change events publish to.
const LeaderChangeTopic = "leader-changed"

// LeaderChangeEvent describes a transition observed by a Candidate or
// Observer.
type LeaderChangeEvent struct {
	Election   string `json:"election"`
	NodeID     string `json:"node_id"`
	Transition string `json:"transition"` // "won", "lost", "leader_alive", "leader_dead"
	OccurredAt int64  `json:"occurred_at_unix_ms"`
}

// kafkaHeaderCarrier adapts kafka.Header slices to otel's TextMapCarrier,
// so a leader-change event carries the trace that triggered it.
type kafkaHeaderCarrier []kafka.Header

func (c kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}

// Publisher publishes LeaderChangeEvent messages to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher constructs a Publisher writing to topic across brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = LeaderChangeTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			BatchSize:    50,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends ev, injecting the active trace context into the message
// headers so a consumer can continue the same trace.
func (p *Publisher) Publish(ctx context.Context, ev LeaderChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{Key: []byte(ev.Election), Value: payload}
	carrier := kafkaHeaderCarrier(msg.Headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	msg.Headers = carrier

	logger.Ctx(ctx).Debug().Str("election", ev.Election).Str("transition", ev.Transition).Msg("publishing leader-changed event")
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }
