// Package notify moves order state events from the order service to the
// customer, through kafka and per-state email templates.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

var producerTracer = otel.Tracer("notify/producer")

// Producer publishes order state events, keyed by order code so all events
// of one order land on the same partition in order.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

var _ order.Publisher = (*Producer)(nil)

// NewProducer creates a kafka-backed event publisher.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
		},
	}
}

// PublishStateEvent writes the event with trace context in the headers.
func (p *Producer) PublishStateEvent(ctx context.Context, ev order.StateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.OrderCode),
		Value: data,
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, &messageCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
