package outbox

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// StatusPending marks a record that has not yet been handed to the
	// transport, or whose last hand-off attempt failed with retry budget left.
	StatusPending = "pending"
	// StatusSent marks a record whose hand-off the transport confirmed.
	StatusSent = "sent"
	// StatusFailed is terminal; the record exhausted its retry budget and
	// needs operator intervention.
	StatusFailed = "failed"
)

// Destination is the transport address a record must be delivered to.
type Destination struct {
	Exchange   string
	RoutingKey string
}

// Message is one pending or completed outgoing event in the outbox table.
// It is created by business-operation code through the Store and mutated
// only by the relay.
type Message struct {
	Id            uint64
	BatchId       *uuid.UUID
	EventType     string
	AggregateId   string
	Payload       []byte
	Exchange      string
	RoutingKey    string
	CorrelationId sql.NullString
	ProducedAt    time.Time
	ClaimedAt     sql.NullTime
	SentAt        sql.NullTime
	Status        string
	RetryCount    int
	LastError     sql.NullString

	// ErrorReason carries the publish failure within a relay pass; it is
	// never persisted as-is, MarkFailedAttempt stores its text.
	ErrorReason error
}

type Batch struct {
	Id       uuid.UUID
	Messages []*Message
}

// TransportMessageId derives the broker-level message id from the record id,
// so that a transport redelivery of the same record stays deduplicable on
// the consuming side.
func (m *Message) TransportMessageId() string {
	return fmt.Sprintf("outbox-%d", m.Id)
}

func (m *Message) Destination() Destination {
	return Destination{
		Exchange:   m.Exchange,
		RoutingKey: m.RoutingKey,
	}
}
