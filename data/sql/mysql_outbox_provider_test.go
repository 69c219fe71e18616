package sql

import "testing"

func newMysqlOutboxProvider() MysqlOutboxProvider {
	return MysqlOutboxProvider{
		Table:   "outbox",
		Columns: []string{"id", "payload"},
	}
}

func TestMysqlOutboxProvider_InsertEventSql(t *testing.T) {
	got := newMysqlOutboxProvider().InsertEventSql()
	exp := "INSERT INTO `outbox` (`event_type`, `aggregate_id`, `payload`, `exchange`, `routing_key`, `correlation_id`, `produced_at`) VALUES (?, ?, ?, ?, ?, ?, ?)"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_ClaimBatchSql(t *testing.T) {
	got := newMysqlOutboxProvider().ClaimBatchSql(50)
	exp := "UPDATE `outbox` SET `batch_id` = ?, `claimed_at` = NOW() WHERE `status` = 'pending' AND (`claimed_at` IS NULL OR `claimed_at` < ?) AND `retry_count` < ? ORDER BY `produced_at` ASC LIMIT 50"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_ClaimedFetchSql(t *testing.T) {
	got := newMysqlOutboxProvider().ClaimedFetchSql()
	exp := "SELECT `id`, `payload` FROM `outbox` WHERE `batch_id` = ? ORDER BY `produced_at` ASC"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_MarkSentSql(t *testing.T) {
	got := newMysqlOutboxProvider().MarkSentSql()
	exp := "UPDATE `outbox` SET `status` = 'sent', `sent_at` = NOW(), `last_error` = NULL WHERE `id` = ?"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_FailedAttemptSql(t *testing.T) {
	got := newMysqlOutboxProvider().FailedAttemptSql(3)
	exp := "UPDATE `outbox` SET `last_error` = ?, `status` = IF((`retry_count` + 1) >= 3, 'failed', 'pending'), `batch_id` = NULL, `claimed_at` = NULL, `retry_count` = `retry_count` + 1 WHERE `id` = ?"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_DeleteSentSql(t *testing.T) {
	got := newMysqlOutboxProvider().DeleteSentSql()
	exp := "DELETE FROM `outbox` WHERE `status` = 'sent' AND `sent_at` <= ?"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestMysqlOutboxProvider_SizeSqls(t *testing.T) {
	p := newMysqlOutboxProvider()

	if got := p.GetQueueSizeSql(); got != "SELECT COUNT(*) FROM `outbox` WHERE `status` = 'pending'" {
		t.Errorf("unexpected queue size SQL: %q", got)
	}

	if got := p.GetTotalSizeSql(); got != "SELECT COUNT(*) FROM `outbox`" {
		t.Errorf("unexpected total size SQL: %q", got)
	}
}
