package inbox

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"brokerbox/outbox-relay/log"

	"github.com/pkg/errors"
)

// Outcome tells the transport adapter what to signal back to the broker.
type Outcome int

const (
	Ack Outcome = iota
	Nack
)

// Handler runs the business side of a delivery inside the same transaction
// that records its receipt, so side effects and the processed mark commit
// or roll back together.
type Handler interface {
	Handle(ctx context.Context, tx *sql.Tx, d Delivery) error
}

type HandlerFunc func(ctx context.Context, tx *sql.Tx, d Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, tx *sql.Tx, d Delivery) error {
	return f(ctx, tx, d)
}

type repository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, messageId string) (string, int, error)
	Insert(ctx context.Context, tx *sql.Tx, d Delivery, receivedAt time.Time) (InsertOutcome, error)
	MarkRetry(ctx context.Context, tx *sql.Tx, messageId string) error
	MarkProcessed(ctx context.Context, tx *sql.Tx, messageId string) error
	RecordFailure(messageId string, cause error)
}

// ErrClosed is returned for deliveries arriving after Close; they are
// nacked so the broker redelivers them elsewhere.
var ErrClosed = errors.New("inbox: gate is closed to new deliveries")

// Gate is the receive-side idempotency barrier: every delivery is durably
// recorded before processing, duplicates become acknowledged no-ops, and
// receipt plus processing outcome commit atomically.
type Gate struct {
	repo     repository
	handler  Handler
	timeout  time.Duration
	closed   int32
	inFlight sync.WaitGroup
}

func NewGate(repo repository, handler Handler, timeout time.Duration) *Gate {
	return &Gate{
		repo:    repo,
		handler: handler,
		timeout: timeout,
	}
}

// HandleDelivery processes one inbound delivery. The returned Outcome must
// only be signalled to the broker after this call returns: an Ack for a
// processed message is decided strictly after the commit has succeeded.
func (g *Gate) HandleDelivery(ctx context.Context, d Delivery) (Outcome, error) {
	if atomic.LoadInt32(&g.closed) == 1 {
		return Nack, ErrClosed
	}
	g.inFlight.Add(1)
	defer g.inFlight.Done()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	tx, err := g.repo.BeginTx(ctx)
	if err != nil {
		return Nack, errors.Errorf("inbox: error opening delivery transaction for %s: %s", d.MessageId, err)
	}

	return g.process(ctx, tx, d)
}

// Close stops accepting new deliveries and blocks until in-flight ones
// have finished.
func (g *Gate) Close() {
	atomic.StoreInt32(&g.closed, 1)
	g.inFlight.Wait()
}

func (g *Gate) process(ctx context.Context, tx *sql.Tx, d Delivery) (Outcome, error) {
	status, _, err := g.repo.GetForUpdate(ctx, tx, d.MessageId)

	switch {
	case err == nil && status == StatusProcessed:
		// already completed; acknowledge without re-running business logic
		rollback(tx, d.MessageId)
		return Ack, nil
	case err == nil:
		// a prior attempt did not finish, reuse the record
		if err := g.repo.MarkRetry(ctx, tx, d.MessageId); err != nil {
			rollback(tx, d.MessageId)
			return Nack, err
		}
	case errors.Is(err, ErrNotFound):
		outcome, err := g.repo.Insert(ctx, tx, d, time.Now().In(time.UTC))
		if err != nil {
			rollback(tx, d.MessageId)
			return Nack, err
		}
		if outcome == AlreadyExists {
			// lost a concurrent race on the unique key; the winner is
			// processing this message, treat the loss as success
			rollback(tx, d.MessageId)
			return Ack, nil
		}
	default:
		rollback(tx, d.MessageId)
		return Nack, err
	}

	if err := g.handler.Handle(ctx, tx, d); err != nil {
		// the rollback undoes the insert too, so a later redelivery can
		// record and attempt the message afresh
		rollback(tx, d.MessageId)
		g.repo.RecordFailure(d.MessageId, err)
		return Nack, errors.Errorf("inbox: processing of message %s failed: %s", d.MessageId, err)
	}

	if err := g.repo.MarkProcessed(ctx, tx, d.MessageId); err != nil {
		rollback(tx, d.MessageId)
		return Nack, err
	}

	if err := tx.Commit(); err != nil {
		return Nack, errors.Errorf("inbox: error committing delivery transaction for %s: %s", d.MessageId, err)
	}

	return Ack, nil
}

func rollback(tx *sql.Tx, messageId string) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Logger.WithError(err).Errorf("error rolling back delivery transaction for inbox message %s", messageId)
	}
}
