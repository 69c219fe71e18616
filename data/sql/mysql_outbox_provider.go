package sql

import (
	"fmt"
	"strings"
)

type MysqlOutboxProvider struct {
	Table   string
	Columns []string
}

func (m MysqlOutboxProvider) InsertEventSql() string {
	q := "INSERT INTO `%s` (`event_type`, `aggregate_id`, `payload`, `exchange`, `routing_key`, `correlation_id`, `produced_at`) VALUES (?, ?, ?, ?, ?, ?, ?)"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlOutboxProvider) InsertReturnsId() bool {
	return false
}

// ClaimBatchSql is a single-statement claim; MySQL cannot subselect the
// target table inside an UPDATE, but UPDATE with ORDER BY and LIMIT gives
// the same claim semantics under row locking.
func (m MysqlOutboxProvider) ClaimBatchSql(batchSize int) string {
	q := "UPDATE `%s` SET `batch_id` = ?, `claimed_at` = NOW() WHERE `status` = 'pending' AND (`claimed_at` IS NULL OR `claimed_at` < ?) AND `retry_count` < ? ORDER BY `produced_at` ASC LIMIT %d"

	return fmt.Sprintf(q, m.Table, batchSize)
}

func (m MysqlOutboxProvider) ClaimedFetchSql() string {
	return fmt.Sprintf("SELECT %s FROM `%s` WHERE `batch_id` = ? ORDER BY `produced_at` ASC", strings.Join(m.escapeColumns(), ", "), m.Table)
}

func (m MysqlOutboxProvider) MarkSentSql() string {
	return fmt.Sprintf("UPDATE `%s` SET `status` = 'sent', `sent_at` = NOW(), `last_error` = NULL WHERE `id` = ?", m.Table)
}

// FailedAttemptSql assigns status before retry_count because MySQL applies
// SET clauses left to right; the IF must see the pre-increment value.
func (m MysqlOutboxProvider) FailedAttemptSql(maxAttempts int) string {
	q := "UPDATE `%s` SET `last_error` = ?, `status` = IF((`retry_count` + 1) >= %d, 'failed', 'pending'), `batch_id` = NULL, `claimed_at` = NULL, `retry_count` = `retry_count` + 1 WHERE `id` = ?"

	return fmt.Sprintf(q, m.Table, maxAttempts)
}

func (m MysqlOutboxProvider) DeleteSentSql() string {
	return fmt.Sprintf("DELETE FROM `%s` WHERE `status` = 'sent' AND `sent_at` <= ?", m.Table)
}

func (m MysqlOutboxProvider) GetQueueSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE `status` = 'pending'", m.Table)
}

func (m MysqlOutboxProvider) GetTotalSizeSql() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM `%s`", m.Table)
}

func (m MysqlOutboxProvider) escapeColumns() []string {
	var escaped []string
	for _, c := range m.Columns {
		escaped = append(escaped, "`"+c+"`")
	}

	return escaped
}
