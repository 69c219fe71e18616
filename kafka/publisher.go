package kafka

import (
	"context"

	"brokerbox/outbox-relay/log"
	"brokerbox/outbox-relay/outbox"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// Publisher is the Kafka rendition of the relay transport: the exchange
// maps to a topic and the aggregate id becomes the partition key, which
// keeps records for one aggregate in one partition and so in order.
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(kafkaHosts []string, cfg *sarama.Config) Publisher {
	return NewPublisherWithProducer(newProducer(cfg, kafkaHosts))
}

func NewPublisherWithProducer(prod sarama.SyncProducer) Publisher {
	return Publisher{
		producer: prod,
	}
}

// Publish hands one record to Kafka. The sync producer carries its own
// delivery deadlines in the sarama config; ctx is honoured up front so a
// relay pass that already timed out does not start another send.
func (p Publisher) Publish(ctx context.Context, m *outbox.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Errorf("kafka: not publishing message %d: %s", m.Id, err)
	}

	pm := &sarama.ProducerMessage{
		Topic: m.Exchange,
		Key:   messageKey(m),
		Value: sarama.ByteEncoder(m.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(m.TransportMessageId())},
			{Key: []byte("event_type"), Value: []byte(m.EventType)},
			{Key: []byte("correlation_id"), Value: []byte(m.CorrelationId.String)},
			{Key: []byte("routing_key"), Value: []byte(m.RoutingKey)},
		},
	}

	partition, offset, err := p.producer.SendMessage(pm)
	if err != nil {
		return errors.Errorf("kafka: error producing message %d: %s", m.Id, err)
	}

	log.Logger.Debugf("produced message in Kafka (topic: %s, partition: %d, offset: %d)", m.Exchange, partition, offset)

	return nil
}

func (p Publisher) Close() error {
	return p.producer.Close()
}

func messageKey(m *outbox.Message) sarama.Encoder {
	if m.AggregateId != "" {
		return sarama.StringEncoder(m.AggregateId)
	}

	if m.RoutingKey != "" {
		return sarama.StringEncoder(m.RoutingKey)
	}

	return nil
}

func newProducer(cfg *sarama.Config, kafkaHosts []string) sarama.SyncProducer {
	producer, err := sarama.NewSyncProducer(kafkaHosts, cfg)
	if err != nil {
		log.Logger.Panicf("could not start kafka producer: %s", err)
	}

	return producer
}
