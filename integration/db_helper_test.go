//go:build integration
// +build integration

package integration

import (
	"fmt"
	"strings"
	"time"

	"brokerbox/outbox-relay/outbox"
)

func purgeTables() {
	for _, table := range []string{cfg.DBOutboxTable, cfg.DBInboxTable} {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			panic(fmt.Sprintf("an error occurred cleaning the %s table for tests: %s", table, err))
		}
	}
}

func getOutboxMessage(id uint64) *outbox.Message {
	q := fmt.Sprintf("SELECT id, status, retry_count, sent_at, last_error FROM %s WHERE id = ?", cfg.DBOutboxTable)
	if cfg.DBDriver.Postgres() {
		q = strings.Replace(q, "?", "$1", 1)
	}

	m := &outbox.Message{}
	err := db.QueryRow(q, id).Scan(&m.Id, &m.Status, &m.RetryCount, &m.SentAt, &m.LastError)
	if err != nil {
		panic(fmt.Sprintf("failed to fetch outbox message %d: %s", id, err))
	}

	return m
}

func countOutboxMessages() int {
	var count int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", cfg.DBOutboxTable)).Scan(&count); err != nil {
		panic(fmt.Sprintf("failed to count outbox messages: %s", err))
	}

	return count
}

func getInboxStatus(messageId string) (string, int) {
	q := fmt.Sprintf("SELECT status, retry_count FROM %s WHERE message_id = ?", cfg.DBInboxTable)
	if cfg.DBDriver.Postgres() {
		q = strings.Replace(q, "?", "$1", 1)
	}

	var status string
	var retryCount int
	if err := db.QueryRow(q, messageId).Scan(&status, &retryCount); err != nil {
		panic(fmt.Sprintf("failed to fetch inbox record %s: %s", messageId, err))
	}

	return status, retryCount
}

func insertSentOutboxMessage(sentAt time.Time) {
	q := fmt.Sprintf("INSERT INTO %s (event_type, aggregate_id, payload, exchange, routing_key, produced_at, sent_at, status) VALUES (?, ?, ?, ?, ?, ?, ?, 'sent')", cfg.DBOutboxTable)
	if cfg.DBDriver.Postgres() {
		q = fmt.Sprintf("INSERT INTO %s (event_type, aggregate_id, payload, exchange, routing_key, produced_at, sent_at, status) VALUES ($1, $2, $3, $4, $5, $6, $7, 'sent')", cfg.DBOutboxTable)
	}

	_, err := db.Exec(q, "OrderCreated", "42", []byte(`{}`), "orders", "order.created", sentAt.Add(-time.Minute), sentAt)
	if err != nil {
		panic(fmt.Sprintf("failed to insert sent outbox message: %s", err))
	}
}
