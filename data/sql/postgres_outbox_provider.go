package sql

import (
	"fmt"
	"strings"
)

type PostgresOutboxProvider struct {
	Table   string
	Columns []string
}

func (p PostgresOutboxProvider) InsertEventSql() string {
	q := `INSERT INTO %s (event_type, aggregate_id, payload, exchange, routing_key, correlation_id, produced_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	return fmt.Sprintf(q, p.Table)
}

func (p PostgresOutboxProvider) InsertReturnsId() bool {
	return true
}

// ClaimBatchSql stamps a batch of pending records with a batch id. The
// subquery takes row locks with SKIP LOCKED so concurrent relay instances
// never claim the same record twice, and a claim older than the stale
// threshold (an instance that crashed mid-batch) is claimable again.
func (p PostgresOutboxProvider) ClaimBatchSql(batchSize int) string {
	q := `UPDATE %s SET batch_id = $1, claimed_at = NOW()
		WHERE id IN(
			SELECT id FROM %s
			WHERE status = 'pending' AND (claimed_at IS NULL OR claimed_at < $2) AND retry_count < $3
			ORDER BY produced_at ASC
			LIMIT %d
			FOR UPDATE SKIP LOCKED)`

	return fmt.Sprintf(q, p.Table, p.Table, batchSize)
}

func (p PostgresOutboxProvider) ClaimedFetchSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE batch_id = $1 ORDER BY produced_at ASC`, strings.Join(p.Columns, ", "), p.Table)
}

func (p PostgresOutboxProvider) MarkSentSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'sent', sent_at = NOW(), last_error = NULL WHERE id = $1`, p.Table)
}

func (p PostgresOutboxProvider) FailedAttemptSql(maxAttempts int) string {
	q := `UPDATE %s SET last_error = $1, status = CASE WHEN retry_count + 1 >= %d THEN 'failed' ELSE 'pending' END, batch_id = NULL, claimed_at = NULL, retry_count = retry_count + 1 WHERE id = $2`

	return fmt.Sprintf(q, p.Table, maxAttempts)
}

func (p PostgresOutboxProvider) DeleteSentSql() string {
	return fmt.Sprintf("DELETE FROM %s WHERE status = 'sent' AND sent_at <= $1", p.Table)
}

func (p PostgresOutboxProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = 'pending'", p.Table)
}

func (p PostgresOutboxProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", p.Table)
}
