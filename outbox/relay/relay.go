package relay

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"brokerbox/outbox-relay/log"
	"brokerbox/outbox-relay/outbox"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type repository interface {
	GetBatch(ctx context.Context) (*outbox.Batch, error)
	MarkSent(ctx context.Context, m *outbox.Message) error
	MarkFailedAttempt(ctx context.Context, m *outbox.Message, cause error) error
}

type publisher interface {
	io.Closer
	Publish(ctx context.Context, m *outbox.Message) error
}

// Relay drains pending outbox records to the transport. Delivery is
// at-least-once: a crash between a publish and its completion update means
// the record is sent again later, which the receiving inbox deduplicates.
type Relay struct {
	repo           repository
	pub            publisher
	publishTimeout time.Duration
	queryTimeout   time.Duration
	ticking        int32
}

func New(repo repository, pub publisher, publishTimeout, queryTimeout time.Duration) *Relay {
	return &Relay{
		repo:           repo,
		pub:            pub,
		publishTimeout: publishTimeout,
		queryTimeout:   queryTimeout,
	}
}

// Tick claims one batch and attempts delivery of each record, oldest first.
// Records are completed one at a time so one record's failure cannot undo
// another's success. Only one tick may be in flight at a time; a tick that
// finds another running returns immediately without queueing. Every
// repository call carries its own deadline, a hung database call cannot
// wedge the in-flight guard.
func (r *Relay) Tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.ticking, 0, 1) {
		log.Logger.Debug("relay tick already in flight, skipping")
		return
	}
	defer atomic.StoreInt32(&r.ticking, 0)

	batch, err := r.getBatch(ctx)
	if err != nil {
		if errors.Is(err, outbox.ErrNoEvents) {
			return
		}
		log.Logger.WithError(err).Error("an unexpected error occurred claiming an outbox batch")
		return
	}

	for _, msg := range batch.Messages {
		r.deliver(ctx, msg)
	}
}

func (r *Relay) deliver(ctx context.Context, msg *outbox.Message) {
	log.Logger.WithFields(logrus.Fields{"message_id": msg.Id, "exchange": msg.Exchange, "routing_key": msg.RoutingKey}).Debug("handing outbox message to the transport")

	pubCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	err := r.pub.Publish(pubCtx, msg)
	cancel()

	if err != nil {
		msg.ErrorReason = err
		if updErr := r.markFailedAttempt(ctx, msg, err); updErr != nil {
			log.Logger.WithError(updErr).Errorf("error recording failed attempt for outbox message %d", msg.Id)
		}
		return
	}

	if err := r.markSent(ctx, msg); err != nil {
		// the publish succeeded; the record stays claimed until the stale
		// threshold passes and is then sent again, the inbox absorbs it
		log.Logger.WithError(err).Errorf("error marking outbox message %d as sent", msg.Id)
	}
}

func (r *Relay) getBatch(ctx context.Context) (*outbox.Batch, error) {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return r.repo.GetBatch(qctx)
}

func (r *Relay) markSent(ctx context.Context, msg *outbox.Message) error {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return r.repo.MarkSent(qctx, msg)
}

func (r *Relay) markFailedAttempt(ctx context.Context, msg *outbox.Message, cause error) error {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	return r.repo.MarkFailedAttempt(qctx, msg, cause)
}
