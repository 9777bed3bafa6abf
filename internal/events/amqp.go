package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/model"
)

// AMQPSink publishes audit envelopes to a topic exchange
type AMQPSink struct {
	conn     *amqp091.Connection
	exchange string
}

// NewAMQPSink connects and declares a durable topic exchange
func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPSink{conn: conn, exchange: exchange}, nil
}

// Publish sends one audit as a persistent message and waits for the broker confirm
func (s *AMQPSink) Publish(ctx context.Context, audit *model.ExecutionAudit) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable confirms: %w", err)
	}

	env := NewAuditEnvelope(audit, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    env.Meta.Time,
		Type:         env.Meta.Type,
		Body:         body,
	}
	if env.Meta.CorrelationID != nil {
		publishing.CorrelationId = *env.Meta.CorrelationID
	} else {
		publishing.CorrelationId = uuid.NewString()
	}

	key := RoutingKey(audit)
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, s.exchange, key, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish audit %d: %w", audit.ID, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for confirm of audit %d: %w", audit.ID, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked audit %d", audit.ID)
	}
	logrus.Debugf("Published audit %d to %s/%s", audit.ID, s.exchange, key)
	return nil
}

// Close closes the broker connection
func (s *AMQPSink) Close() error {
	return s.conn.Close()
}
