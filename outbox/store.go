package outbox

import (
	"context"
	"database/sql"
	"time"

	"brokerbox/outbox-relay/config"

	"github.com/pkg/errors"
)

// Store gives business-operation code a single atomic unit that writes
// domain state and a durable delivery intent together. It never talks to
// the broker; decoupling the durable intent from the transport is what
// removes the dual-write hazard.
type Store struct {
	queryProvider queryProvider
}

func NewStore(cfg *config.Config) Store {
	return NewStoreWithQueryProvider(NewQueryProvider(cfg.DBDriver, cfg.DBOutboxTable))
}

func NewStoreWithQueryProvider(qp queryProvider) Store {
	return Store{
		queryProvider: qp,
	}
}

// RecordEvent inserts one pending outbox record within tx. The transaction
// is owned by the caller's business operation: if it commits, the record is
// durably visible to the relay; if it rolls back, the record never existed.
func (s Store) RecordEvent(ctx context.Context, tx *sql.Tx, eventType, aggregateId string, payload []byte, dest Destination, correlationId string) (*Message, error) {
	m := &Message{
		EventType:     eventType,
		AggregateId:   aggregateId,
		Payload:       payload,
		Exchange:      dest.Exchange,
		RoutingKey:    dest.RoutingKey,
		CorrelationId: sql.NullString{String: correlationId, Valid: correlationId != ""},
		ProducedAt:    time.Now().In(time.UTC),
		Status:        StatusPending,
	}

	q := s.queryProvider.InsertEventSql()

	if s.queryProvider.InsertReturnsId() {
		err := tx.QueryRowContext(ctx, q, m.EventType, m.AggregateId, m.Payload, m.Exchange, m.RoutingKey, m.CorrelationId, m.ProducedAt).Scan(&m.Id)
		if err != nil {
			return nil, errors.Errorf("outbox: error recording event in store: %s", err)
		}

		return m, nil
	}

	res, err := tx.ExecContext(ctx, q, m.EventType, m.AggregateId, m.Payload, m.Exchange, m.RoutingKey, m.CorrelationId, m.ProducedAt)
	if err != nil {
		return nil, errors.Errorf("outbox: error recording event in store: %s", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Errorf("outbox: error reading generated id in store: %s", err)
	}
	m.Id = uint64(id)

	return m, nil
}
