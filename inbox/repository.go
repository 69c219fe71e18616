package inbox

import (
	"context"
	"database/sql"
	"time"

	"brokerbox/outbox-relay/config"
	s "brokerbox/outbox-relay/data/sql"
	"brokerbox/outbox-relay/log"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/pkg/errors"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	failureWriteDeadline = 5 * time.Second
)

var ErrNotFound = errors.New("inbox: record not found")

type queryProvider interface {
	SelectForUpdateSql() string
	InsertSql() string
	MarkRetrySql() string
	MarkProcessedSql() string
	RecordFailureSql() string
}

type Repository struct {
	db            *sql.DB
	queryProvider queryProvider
}

func NewRepository(db *sql.DB, cfg *config.Config) Repository {
	return NewRepositoryWithQueryProvider(db, NewQueryProvider(cfg.DBDriver, cfg.DBInboxTable))
}

func NewRepositoryWithQueryProvider(db *sql.DB, qp queryProvider) Repository {
	return Repository{
		db:            db,
		queryProvider: qp,
	}
}

func (r Repository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// GetForUpdate returns the status and retry count of a known message id,
// locking the row until the enclosing transaction ends. ErrNotFound means
// this is the first sight of the id.
func (r Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, messageId string) (string, int, error) {
	var status string
	var retryCount int

	err := tx.QueryRowContext(ctx, r.queryProvider.SelectForUpdateSql(), messageId).Scan(&status, &retryCount)
	if err == sql.ErrNoRows {
		return "", 0, ErrNotFound
	}
	if err != nil {
		return "", 0, errors.Errorf("inbox: error fetching record %s in repository: %s", messageId, err)
	}

	return status, retryCount, nil
}

// Insert durably records first sight of a delivery within tx. A duplicate
// key means another worker recorded it concurrently; that is reported as
// AlreadyExists, not as an error.
func (r Repository) Insert(ctx context.Context, tx *sql.Tx, d Delivery, receivedAt time.Time) (InsertOutcome, error) {
	_, err := tx.ExecContext(
		ctx,
		r.queryProvider.InsertSql(),
		d.MessageId,
		d.EventType,
		d.Payload,
		nullString(d.CorrelationId),
		nullString(d.SourceExchange),
		nullString(d.SourceRoutingKey),
		receivedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return AlreadyExists, nil
		}
		return 0, errors.Errorf("inbox: error inserting record %s in repository: %s", d.MessageId, err)
	}

	return Inserted, nil
}

// MarkRetry reuses a record left behind by an unfinished prior attempt.
func (r Repository) MarkRetry(ctx context.Context, tx *sql.Tx, messageId string) error {
	_, err := tx.ExecContext(ctx, r.queryProvider.MarkRetrySql(), messageId)
	if err != nil {
		return errors.Errorf("inbox: error recording retry for %s in repository: %s", messageId, err)
	}

	return nil
}

func (r Repository) MarkProcessed(ctx context.Context, tx *sql.Tx, messageId string) error {
	_, err := tx.ExecContext(ctx, r.queryProvider.MarkProcessedSql(), messageId)
	if err != nil {
		return errors.Errorf("inbox: error marking %s as processed in repository: %s", messageId, err)
	}

	return nil
}

// RecordFailure writes the failure reason outside the rolled-back delivery
// transaction. It is best-effort instrumentation: if the record's insert was
// rolled back the update touches no rows, and write errors are only logged.
func (r Repository) RecordFailure(messageId string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteDeadline)
	defer cancel()

	_, err := r.db.ExecContext(ctx, r.queryProvider.RecordFailureSql(), cause.Error(), messageId)
	if err != nil {
		log.Logger.WithError(err).Errorf("error recording failure reason for inbox message %s", messageId)
	}
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}

	return false
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func NewQueryProvider(d config.DbDriver, table string) queryProvider {
	switch true {
	case d.Postgres():
		return &s.PostgresInboxProvider{
			Table: table,
		}
	case d.MySQL():
		return &s.MysqlInboxProvider{
			Table: table,
		}
	}

	return nil
}
