package rabbitmq

import (
	"context"
	"sync"

	"brokerbox/outbox-relay/log"
	"brokerbox/outbox-relay/outbox"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp091.Channel the publisher needs; tests
// supply their own implementation.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var ErrNacked = errors.New("rabbitmq: message was nacked by the broker")

// Publisher sends outbox records to RabbitMQ with publisher confirms: a
// publish only counts as handed off once the broker confirms it, within the
// caller's deadline.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	confirms chan amqp.Confirmation

	// published counts publishes the channel accepted; on a confirm-mode
	// channel that is exactly the delivery tag the broker assigned to the
	// most recent publish.
	published uint64
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Errorf("rabbitmq: could not connect to broker: %s", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Errorf("rabbitmq: could not open channel: %s", err)
	}

	pub, err := NewPublisherWithChannel(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pub.conn = conn

	return pub, nil
}

func NewPublisherWithChannel(ch Channel) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Errorf("rabbitmq: could not put channel into confirm mode: %s", err)
	}

	return &Publisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Publish hands one record to the broker and waits for the confirmation
// carrying this publish's delivery tag. Publishes are serialized on the
// channel; confirmations left behind by timed-out publishes are discarded
// by tag so they can never stand in for a later publish's verdict.
func (p *Publisher) Publish(ctx context.Context, m *outbox.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		MessageId:     m.TransportMessageId(),
		CorrelationId: m.CorrelationId.String,
		Type:          m.EventType,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Body:          m.Payload,
		Headers: amqp.Table{
			"x-aggregate-id": m.AggregateId,
		},
	}

	if err := p.ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, msg); err != nil {
		return errors.Errorf("rabbitmq: error publishing message %d: %s", m.Id, err)
	}

	p.published++
	tag := p.published

	for {
		select {
		case c, ok := <-p.confirms:
			if !ok {
				return errors.Errorf("rabbitmq: channel closed before message %d was confirmed", m.Id)
			}
			if c.DeliveryTag < tag {
				// a confirmation for an earlier publish whose caller gave up
				// waiting; it must not be mistaken for this publish's verdict
				log.Logger.Debugf("discarding stale confirmation with delivery tag %d", c.DeliveryTag)
				continue
			}
			if c.DeliveryTag > tag {
				return errors.Errorf("rabbitmq: confirmation for message %d was skipped by the broker (got delivery tag %d, want %d)", m.Id, c.DeliveryTag, tag)
			}
			if !c.Ack {
				return ErrNacked
			}

			log.Logger.Debugf("published message in RabbitMQ (exchange: %s, routing key: %s, delivery tag: %d)", m.Exchange, m.RoutingKey, c.DeliveryTag)

			return nil
		case <-ctx.Done():
			return errors.Errorf("rabbitmq: timed out awaiting confirmation of message %d: %s", m.Id, ctx.Err())
		}
	}
}

func (p *Publisher) Close() error {
	err := p.ch.Close()

	if p.conn != nil {
		if connErr := p.conn.Close(); err == nil {
			err = connErr
		}
	}

	return err
}
