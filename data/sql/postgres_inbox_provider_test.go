package sql

import "testing"

func TestPostgresInboxProvider_SelectForUpdateSql(t *testing.T) {
	got := PostgresInboxProvider{Table: "inbox"}.SelectForUpdateSql()
	exp := "SELECT status, retry_count FROM inbox WHERE message_id = $1 FOR UPDATE"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestPostgresInboxProvider_InsertSql(t *testing.T) {
	got := PostgresInboxProvider{Table: "inbox"}.InsertSql()
	exp := `INSERT INTO inbox (message_id, event_type, payload, correlation_id, source_exchange, source_routing_key, received_at, status) VALUES ($1, $2, $3, $4, $5, $6, $7, 'received')`

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestPostgresInboxProvider_MarkRetrySql(t *testing.T) {
	got := PostgresInboxProvider{Table: "inbox"}.MarkRetrySql()
	exp := "UPDATE inbox SET retry_count = retry_count + 1, status = 'received' WHERE message_id = $1"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestPostgresInboxProvider_MarkProcessedSql(t *testing.T) {
	got := PostgresInboxProvider{Table: "inbox"}.MarkProcessedSql()
	exp := "UPDATE inbox SET status = 'processed', processed_at = NOW() WHERE message_id = $1"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}

func TestPostgresInboxProvider_RecordFailureSql(t *testing.T) {
	got := PostgresInboxProvider{Table: "inbox"}.RecordFailureSql()
	exp := "UPDATE inbox SET status = 'failed', last_error = $1 WHERE message_id = $2"

	if got != exp {
		t.Errorf("expected %q, but got %q", exp, got)
	}
}
