package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

var consumerTracer = otel.Tracer("notify/dispatcher")

// Message is a rendered notification ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered messages. The SMTP integration lives behind this
// boundary; LogSender stands in for it here.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender logs messages instead of delivering them.
type LogSender struct {
	lg *zap.Logger
}

// NewLogSender creates a Sender that writes to the given logger.
func NewLogSender(lg *zap.Logger) *LogSender {
	return &LogSender{lg: lg}
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.lg.Info("notification",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body))
	return nil
}

// Dispatcher consumes state events and turns them into customer emails
// according to the per-state template config.
type Dispatcher struct {
	reader    *kafka.Reader
	topic     string
	templates TemplateRepository
	sender    Sender
	lg        *zap.Logger
}

// NewDispatcher creates a consumer-group dispatcher.
func NewDispatcher(brokers []string, topic, groupID string, templates TemplateRepository, sender Sender, lg *zap.Logger) *Dispatcher {
	return &Dispatcher{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		topic:     topic,
		templates: templates,
		sender:    sender,
		lg:        lg,
	}
}

// Run consumes until ctx is cancelled. Events that cannot be handled are
// logged and committed anyway; redelivering them cannot help, and one bad
// event must not wedge the whole partition.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		d.processMessage(ctx, msg)

		if err := d.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) processMessage(ctx context.Context, msg kafka.Message) {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, &messageCarrier{msg: &msg})

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+d.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if err := d.Handle(spanCtx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.lg.Warn("handle state event",
			zap.String("key", string(msg.Key)), zap.Error(err))
	}
}

// Handle processes one raw event payload.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	var ev order.StateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decoding state event: %w", err)
	}
	if ev.Email == "" {
		// Guest orders without an email have nowhere to deliver to.
		return nil
	}

	t, err := d.templates.GetByState(ctx, ev.StateCode)
	if err != nil {
		if err == ErrTemplateNotFound {
			return nil
		}
		return fmt.Errorf("loading template for state %s: %w", ev.StateCode, err)
	}
	if !t.Enabled {
		return nil
	}

	subject, err := renderTemplate(t.Subject, ev)
	if err != nil {
		return fmt.Errorf("rendering subject for state %s: %w", ev.StateCode, err)
	}
	body, err := renderTemplate(t.Body, ev)
	if err != nil {
		return fmt.Errorf("rendering body for state %s: %w", ev.StateCode, err)
	}

	return d.sender.Send(ctx, Message{To: ev.Email, Subject: subject, Body: body})
}

// Close closes the underlying reader.
func (d *Dispatcher) Close() error {
	return d.reader.Close()
}

func renderTemplate(text string, ev order.StateEvent) (string, error) {
	tpl, err := template.New("notification").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, ev); err != nil {
		return "", err
	}
	return buf.String(), nil
}
