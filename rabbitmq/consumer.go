package rabbitmq

import (
	"context"

	"brokerbox/outbox-relay/inbox"
	"brokerbox/outbox-relay/log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type gate interface {
	HandleDelivery(ctx context.Context, d inbox.Delivery) (inbox.Outcome, error)
}

// ConsumeChannel is the subset of *amqp091.Channel the consumer needs.
type ConsumeChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Consumer feeds broker deliveries through the inbox gate and signals the
// gate's verdict back with manual acks. Nacks do not requeue; redelivery
// policy belongs to the broker's dead-letter setup.
type Consumer struct {
	ch    ConsumeChannel
	gate  gate
	queue string
	tag   string
}

func NewConsumer(ch ConsumeChannel, g gate, queue string) *Consumer {
	return &Consumer{
		ch:    ch,
		gate:  g,
		queue: queue,
		tag:   "outbox-relay-" + uuid.New().String(),
	}
}

// NewConsumerFromUrl dials the broker on a dedicated connection and returns
// the consumer along with a function releasing the connection.
func NewConsumerFromUrl(url string, g gate, queue string) (*Consumer, func(), error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, errors.Errorf("rabbitmq: could not connect to broker: %s", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Errorf("rabbitmq: could not open channel: %s", err)
	}

	cleanup := func() {
		if err := ch.Close(); err != nil {
			log.Logger.WithError(err).Error("error closing consumer channel")
		}
		if err := conn.Close(); err != nil {
			log.Logger.WithError(err).Error("error closing consumer connection")
		}
	}

	return NewConsumer(ch, g, queue), cleanup, nil
}

// Listen consumes deliveries until ctx is cancelled. The delivery being
// handled when cancellation arrives finishes; anything still unacked after
// the consumer is cancelled is redelivered by the broker.
func (c *Consumer) Listen(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return errors.Errorf("rabbitmq: error starting consumer on queue %s: %s", c.queue, err)
	}

	log.Logger.Infof("consuming deliveries from queue %s", c.queue)

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		case <-ctx.Done():
			if err := c.ch.Cancel(c.tag, false); err != nil {
				log.Logger.WithError(err).Error("error cancelling consumer during shutdown")
			}
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	messageId := d.MessageId
	if messageId == "" {
		// senders outside the outbox protocol may omit the id; such a
		// delivery can never be deduplicated, it gets a one-off identity
		messageId = uuid.New().String()
	}

	delivery := inbox.Delivery{
		MessageId:        messageId,
		EventType:        d.Type,
		Payload:          d.Body,
		CorrelationId:    d.CorrelationId,
		SourceExchange:   d.Exchange,
		SourceRoutingKey: d.RoutingKey,
	}

	outcome, err := c.gate.HandleDelivery(ctx, delivery)
	if err != nil {
		log.Logger.WithError(err).Errorf("error handling delivery %s", messageId)
	}

	if outcome == inbox.Ack {
		if err := d.Ack(false); err != nil {
			log.Logger.WithError(err).Errorf("error acknowledging delivery %s", messageId)
		}
		return
	}

	if err := d.Nack(false, false); err != nil {
		log.Logger.WithError(err).Errorf("error negatively acknowledging delivery %s", messageId)
	}
}
