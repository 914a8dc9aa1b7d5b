package observability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is one focuschat event bound for the events exchange. Stream is the
// routing key on the topic exchange, Type names the event family and Name
// the concrete event inside it. Request and trace ids travel as AMQP headers
// so consumers can correlate without parsing the body.
type Event struct {
	Stream    string
	Type      string
	Name      string
	RequestID string
	TraceID   string
	Payload   interface{}
}

// eventBody is the wire shape shared by every published event.
type eventBody struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventName     string      `json:"event_name"`
	OccurredAt    string      `json:"occurred_at"`
	Payload       interface{} `json:"payload"`
}

func (ev Event) headers() amqp.Table {
	headers := amqp.Table{}
	if ev.RequestID != "" {
		headers["x-request-id"] = ev.RequestID
	}
	if ev.TraceID != "" {
		headers["trace_id"] = ev.TraceID
	}
	return headers
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

var errPublishNacked = errors.New("broker nacked publish")

// AMQPPublisher publishes events to a durable topic exchange. The channel
// runs in confirm mode, so a broker nack surfaces as an error instead of
// silent loss.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(eventBody{
		SchemaVersion: 1,
		EventType:     ev.Type,
		EventName:     ev.Name,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload:       ev.Payload,
	})
	if err != nil {
		return err
	}

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, ev.Stream, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      ev.headers(),
	})
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errPublishNacked
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an event through the configured publisher. Without one
// it is a no-op, so event emission never gates local development.
func PublishEvent(ctx context.Context, ev Event) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, ev)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
