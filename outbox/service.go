package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/mlindqvist/zkdistributed/logger"
)

// kafkaHeaderCarrier adapts kafka.Header slices to otel's TextMapCarrier.
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

// Service queues outbound Kafka messages durably and forwards them.
type Service struct {
	store  Store
	writer *kafka.Writer
}

// NewService returns a Service persisting to store and forwarding
// through writer.
func NewService(store Store, writer *kafka.Writer) *Service {
	return &Service{store: store, writer: writer}
}

// Enqueue records payload for eventual delivery to topic/key. It
// returns as soon as the row is durably written; delivery itself
// happens on the first ForwardPending call made once the row is more
// than two seconds old.
func (s *Service) Enqueue(ctx context.Context, topic, key string, payload []byte) error {
	return s.store.Create(ctx, &Message{
		Topic:   topic,
		Key:     key,
		Payload: payload,
		Status:  StatusPending,
	})
}

// ForwardPending delivers up to 100 pending messages to Kafka, marking
// each SENT on success or bumping its retry count on failure so a later
// call retries it once the row has been untouched for two seconds.
func (s *Service) ForwardPending(ctx context.Context) error {
	log := logger.Ctx(ctx)

	messages, err := s.store.FindPending(ctx, 100)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	tracer := otel.Tracer("leadership-outbox-forwarder")
	for _, msg := range messages {
		kafkaMsg := kafka.Message{Topic: msg.Topic, Key: []byte(msg.Key), Value: msg.Payload}

		spanCtx, span := tracer.Start(ctx, "forward_leadership_event")
		carrier := kafkaHeaderCarrier(kafkaMsg.Headers)
		otel.GetTextMapPropagator().Inject(spanCtx, &carrier)
		kafkaMsg.Headers = carrier

		err := s.writer.WriteMessages(spanCtx, kafkaMsg)
		span.End()

		if err != nil {
			log.Warn().Err(err).Int64("msg_id", msg.ID).Msg("failed to forward outbox message")
			_ = s.store.UpdateStatus(ctx, msg.ID, StatusPending, msg.RetryCount+1)
			continue
		}
		log.Debug().Int64("msg_id", msg.ID).Str("topic", msg.Topic).Msg("forwarded outbox message")
		_ = s.store.UpdateStatus(ctx, msg.ID, StatusSent, msg.RetryCount)
	}
	return nil
}
