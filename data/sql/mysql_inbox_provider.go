package sql

import "fmt"

type MysqlInboxProvider struct {
	Table string
}

func (m MysqlInboxProvider) SelectForUpdateSql() string {
	return fmt.Sprintf("SELECT `status`, `retry_count` FROM `%s` WHERE `message_id` = ? FOR UPDATE", m.Table)
}

func (m MysqlInboxProvider) InsertSql() string {
	q := "INSERT INTO `%s` (`message_id`, `event_type`, `payload`, `correlation_id`, `source_exchange`, `source_routing_key`, `received_at`, `status`) VALUES (?, ?, ?, ?, ?, ?, ?, 'received')"

	return fmt.Sprintf(q, m.Table)
}

func (m MysqlInboxProvider) MarkRetrySql() string {
	return fmt.Sprintf("UPDATE `%s` SET `retry_count` = `retry_count` + 1, `status` = 'received' WHERE `message_id` = ?", m.Table)
}

func (m MysqlInboxProvider) MarkProcessedSql() string {
	return fmt.Sprintf("UPDATE `%s` SET `status` = 'processed', `processed_at` = NOW() WHERE `message_id` = ?", m.Table)
}

func (m MysqlInboxProvider) RecordFailureSql() string {
	return fmt.Sprintf("UPDATE `%s` SET `status` = 'failed', `last_error` = ? WHERE `message_id` = ?", m.Table)
}
