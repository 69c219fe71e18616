package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"syscall"

	"brokerbox/outbox-relay/config"
	"brokerbox/outbox-relay/data"
	"brokerbox/outbox-relay/inbox"
	"brokerbox/outbox-relay/job"
	"brokerbox/outbox-relay/kafka"
	"brokerbox/outbox-relay/log"
	"brokerbox/outbox-relay/outbox"
	"brokerbox/outbox-relay/outbox/relay"
	"brokerbox/outbox-relay/prometheus"
	"brokerbox/outbox-relay/rabbitmq"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	db, dbClose := data.NewDB(cfg)
	defer dbClose()

	repo := outbox.NewRepository(db, cfg)

	if cfg.RunCleanup {
		exitCode := job.RunCleanup(ctx, repo, cfg)
		if exitCode > 0 {
			dbClose() // we call this manually because os.Exit() does not respect defer
			os.Exit(exitCode)
		}
		return
	}

	runMainApp(ctx, db, repo, cfg)
}

type relayPublisher interface {
	io.Closer
	Publish(ctx context.Context, m *outbox.Message) error
}

func runMainApp(ctx context.Context, db *sql.DB, repo outbox.Repository, cfg *config.Config) {
	pub := newPublisher(cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Logger.WithError(err).Error("error closing publisher during shutdown")
		}
	}()

	rel := relay.New(repo, pub, cfg.GetPublishTimeoutDurationInMs(), cfg.GetQueryTimeoutDurationInMs())
	relayDone := relay.Start(ctx, rel, cfg.GetPollIntervalDurationInMs())

	if cfg.RunInbox {
		startInboxConsumer(ctx, db, cfg)
	}

	go prometheus.ObserveQueueSize(ctx, repo)
	go prometheus.ObserveTotalSize(ctx, repo)
	go prometheus.StartHttpServer(cfg, db)

	<-relayDone
}

func newPublisher(cfg *config.Config) relayPublisher {
	if cfg.RelayTransport.Kafka() {
		return kafka.NewPublisher(cfg.KafkaHost, kafka.NewSaramaConfig(cfg.TLSEnable, cfg.TLSSkipVerifyPeer, cfg.GetPublishTimeoutDurationInMs()))
	}

	pub, err := rabbitmq.NewPublisher(cfg.AMQPUrl)
	if err != nil {
		log.Logger.Fatalf("unable to create RabbitMQ publisher: %s", err)
	}

	return pub
}

func startInboxConsumer(ctx context.Context, db *sql.DB, cfg *config.Config) {
	gate := inbox.NewGate(inbox.NewRepository(db, cfg), deliveryLogger{}, cfg.GetPublishTimeoutDurationInMs())

	consumer, cleanup, err := rabbitmq.NewConsumerFromUrl(cfg.AMQPUrl, gate, cfg.AMQPQueue)
	if err != nil {
		log.Logger.Fatalf("unable to create RabbitMQ consumer: %s", err)
	}

	go func() {
		defer cleanup()
		if err := consumer.Listen(ctx); err != nil {
			log.Logger.WithError(err).Error("inbox consumer stopped with an error")
		}
		gate.Close()
	}()
}

// deliveryLogger is the standalone consumer's handler. Embedders of the
// inbox gate supply real business logic in its place; the relay binary only
// validates the payload shape and records receipt.
type deliveryLogger struct{}

func (deliveryLogger) Handle(ctx context.Context, tx *sql.Tx, d inbox.Delivery) error {
	var evt struct {
		EventType   string `json:"eventType"`
		AggregateId string `json:"aggregateId"`
	}

	if err := inbox.DecodePayload(d, &evt); err != nil {
		return err
	}

	log.Logger.Infof("processed delivery %s (event type: %s)", d.MessageId, d.EventType)

	return nil
}
