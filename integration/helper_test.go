//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"brokerbox/outbox-relay/config"
	"brokerbox/outbox-relay/data"
	"brokerbox/outbox-relay/outbox"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	cfg        *config.Config
	db         *sql.DB
	outboxRepo outbox.Repository
	store      outbox.Store
)

func init() {
	var err error
	cfg, err = config.NewConfig()
	if err != nil {
		panic(fmt.Sprintf("error creating config for integration tests: %s", err))
	}

	db, _ = data.NewDB(cfg)

	outboxRepo = outbox.NewRepository(db, cfg)
	store = outbox.NewStore(cfg)
}

func recordEvent(eventType, aggregateId string, payload []byte, dest outbox.Destination, correlationId string) *outbox.Message {
	tx, err := db.Begin()
	if err != nil {
		panic(fmt.Sprintf("error creating a DB transaction: %s", err))
	}

	m, err := store.RecordEvent(context.Background(), tx, eventType, aggregateId, payload, dest, correlationId)
	if err != nil {
		panic(fmt.Sprintf("error recording outbox event: %s", err))
	}

	if err = tx.Commit(); err != nil {
		panic(fmt.Sprintf("error committing DB transaction: %s", err))
	}

	return m
}

func declareTopology(exchange, queue, routingKey string) {
	conn, ch := amqpChannel()
	defer conn.Close()
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		panic(fmt.Sprintf("error declaring exchange %s: %s", exchange, err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		panic(fmt.Sprintf("error declaring queue %s: %s", queue, err))
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		panic(fmt.Sprintf("error binding queue %s: %s", queue, err))
	}
	if _, err := ch.QueuePurge(queue, false); err != nil {
		panic(fmt.Sprintf("error purging queue %s: %s", queue, err))
	}
}

func consumeOne(queue string, timeout time.Duration) (amqp.Delivery, bool) {
	conn, ch := amqpChannel()
	defer conn.Close()
	defer ch.Close()

	deliveries, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		panic(fmt.Sprintf("error consuming from queue %s: %s", queue, err))
	}

	select {
	case d := <-deliveries:
		return d, true
	case <-time.After(timeout):
		return amqp.Delivery{}, false
	}
}

func amqpChannel() (*amqp.Connection, *amqp.Channel) {
	conn, err := amqp.Dial(cfg.AMQPUrl)
	if err != nil {
		panic(fmt.Sprintf("error connecting to RabbitMQ for integration tests: %s", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		panic(fmt.Sprintf("error opening a RabbitMQ channel for integration tests: %s", err))
	}

	return conn, ch
}
