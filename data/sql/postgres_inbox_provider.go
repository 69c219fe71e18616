package sql

import "fmt"

type PostgresInboxProvider struct {
	Table string
}

// SelectForUpdateSql locks the row for the duration of the delivery
// transaction, so two workers replaying the same known message serialize
// instead of both running the business handler.
func (p PostgresInboxProvider) SelectForUpdateSql() string {
	return fmt.Sprintf("SELECT status, retry_count FROM %s WHERE message_id = $1 FOR UPDATE", p.Table)
}

func (p PostgresInboxProvider) InsertSql() string {
	q := `INSERT INTO %s (message_id, event_type, payload, correlation_id, source_exchange, source_routing_key, received_at, status) VALUES ($1, $2, $3, $4, $5, $6, $7, 'received')`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresInboxProvider) MarkRetrySql() string {
	return fmt.Sprintf("UPDATE %s SET retry_count = retry_count + 1, status = 'received' WHERE message_id = $1", p.Table)
}

func (p PostgresInboxProvider) MarkProcessedSql() string {
	return fmt.Sprintf("UPDATE %s SET status = 'processed', processed_at = NOW() WHERE message_id = $1", p.Table)
}

func (p PostgresInboxProvider) RecordFailureSql() string {
	return fmt.Sprintf("UPDATE %s SET status = 'failed', last_error = $1 WHERE message_id = $2", p.Table)
}
