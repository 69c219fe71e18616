package outbox

import (
	"context"
	"database/sql"
	"time"

	"brokerbox/outbox-relay/config"
	s "brokerbox/outbox-relay/data/sql"
	"brokerbox/outbox-relay/log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// staleClaimAge is how long a claimed record may sit without completing
// before another tick may reclaim it (a relay instance died mid-batch).
const staleClaimAge = 10 * time.Minute

var (
	ErrNoEvents = errors.New("no events in the batch")

	columns = []string{"id", "batch_id", "event_type", "aggregate_id", "payload", "exchange", "routing_key", "correlation_id", "produced_at", "claimed_at", "sent_at", "status", "retry_count", "last_error"}
)

type queryProvider interface {
	InsertEventSql() string
	InsertReturnsId() bool
	ClaimBatchSql(batchSize int) string
	ClaimedFetchSql() string
	MarkSentSql() string
	FailedAttemptSql(maxAttempts int) string
	DeleteSentSql() string
	GetQueueSizeSql() string
	GetTotalSizeSql() string
}

type Repository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider queryProvider
}

func NewRepository(db *sql.DB, cfg *config.Config) Repository {
	return NewRepositoryWithQueryProvider(db, cfg, NewQueryProvider(cfg.DBDriver, cfg.DBOutboxTable))
}

func NewRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp queryProvider) Repository {
	return Repository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

// GetBatch claims a batch of pending records and returns them ordered by
// produced_at ascending. The claim prevents other relay instances from
// picking up the same records concurrently.
// If no records are claimed the special ErrNoEvents value is returned as
// the error.
func (r Repository) GetBatch(ctx context.Context) (*Batch, error) {
	batchId := uuid.New()
	stale := time.Now().In(time.UTC).Add(-staleClaimAge)

	res, err := r.db.ExecContext(ctx, r.queryProvider.ClaimBatchSql(r.cfg.BatchSize), batchId, stale, r.cfg.MaxPublishAttempts)
	if err != nil {
		return nil, errors.Errorf("outbox: error claiming a batch of events in repository: %s", err)
	}

	// if there is an error determining the affected rows, we treat it as a failed query
	// as the drivers we use never return an error value here
	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoEvents
	}

	rows, err := r.db.QueryContext(ctx, r.queryProvider.ClaimedFetchSql(), batchId)
	if err != nil {
		return nil, errors.Errorf("outbox: error fetching claimed event batch in repository: %s", err)
	}
	defer rows.Close()

	batch := &Batch{
		Id:       batchId,
		Messages: []*Message{},
	}

	for rows.Next() {
		msg := &Message{}
		err := rows.Scan(&msg.Id, &msg.BatchId, &msg.EventType, &msg.AggregateId, &msg.Payload, &msg.Exchange, &msg.RoutingKey, &msg.CorrelationId, &msg.ProducedAt, &msg.ClaimedAt, &msg.SentAt, &msg.Status, &msg.RetryCount, &msg.LastError)
		if err != nil {
			return nil, errors.Errorf("outbox: error scanning event result into memory in repository: %s", err)
		}
		batch.Messages = append(batch.Messages, msg)
	}

	return batch, nil
}

// MarkSent records a confirmed hand-off for a single message. It is a
// standalone statement on purpose: a failure recording one record's outcome
// must never roll back another record's success.
func (r Repository) MarkSent(ctx context.Context, m *Message) error {
	_, err := r.db.ExecContext(ctx, r.queryProvider.MarkSentSql(), m.Id)
	if err != nil {
		return errors.Errorf("outbox: error marking message %d as sent: %s", m.Id, err)
	}

	m.Status = StatusSent

	return nil
}

// MarkFailedAttempt increments the retry count and releases the claim so a
// later tick retries the record; once the budget is exhausted the record
// moves to the terminal failed status.
func (r Repository) MarkFailedAttempt(ctx context.Context, m *Message, cause error) error {
	q := r.queryProvider.FailedAttemptSql(r.cfg.MaxPublishAttempts)

	log.Logger.WithFields(logrus.Fields{"id": m.Id, "error_reason": cause}).Debug("recording failed publish attempt")

	_, err := r.db.ExecContext(ctx, q, cause.Error(), m.Id)
	if err != nil {
		return errors.Errorf("outbox: error recording failed attempt for message %d: %s", m.Id, err)
	}

	m.RetryCount++
	if m.RetryCount >= r.cfg.MaxPublishAttempts {
		m.Status = StatusFailed
	}

	return nil
}

func (r Repository) DeleteSent(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.queryProvider.DeleteSentSql(), olderThan)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r Repository) GetQueueSize(ctx context.Context) (uint, error) {
	res := r.db.QueryRowContext(ctx, r.queryProvider.GetQueueSizeSql())

	var count uint
	err := res.Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r Repository) GetTotalSize(ctx context.Context) (uint, error) {
	res := r.db.QueryRowContext(ctx, r.queryProvider.GetTotalSizeSql())

	var count uint
	err := res.Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func NewQueryProvider(d config.DbDriver, table string) queryProvider {
	switch true {
	case d.Postgres():
		return &s.PostgresOutboxProvider{
			Table:   table,
			Columns: columns,
		}
	case d.MySQL():
		return &s.MysqlOutboxProvider{
			Table:   table,
			Columns: columns,
		}
	}

	return nil
}
