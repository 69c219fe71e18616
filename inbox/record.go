package inbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// StatusReceived marks a delivery that has been durably recorded but
	// whose processing has not completed yet.
	StatusReceived = "received"
	// StatusProcessed marks a delivery whose business processing committed;
	// redeliveries of it are acknowledged without side effects.
	StatusProcessed = "processed"
	// StatusFailed marks a delivery whose last processing attempt raised;
	// a redelivery reuses the row and tries again.
	StatusFailed = "failed"
)

// Delivery is one inbound message as seen at the transport boundary.
type Delivery struct {
	MessageId        string
	EventType        string
	Payload          []byte
	CorrelationId    string
	SourceExchange   string
	SourceRoutingKey string
}

// Record is the durable form of a delivery, keyed by the sender-supplied
// message id. The unique constraint on that key is what turns at-least-once
// delivery into effectively-once processing.
type Record struct {
	MessageId        string
	EventType        string
	Payload          []byte
	CorrelationId    sql.NullString
	SourceExchange   sql.NullString
	SourceRoutingKey sql.NullString
	ReceivedAt       time.Time
	ProcessedAt      sql.NullTime
	Status           string
	RetryCount       int
	LastError        sql.NullString
}

// InsertOutcome is the explicit result of recording first sight of a
// delivery; a duplicate key is an expected, common case and not an error.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	AlreadyExists
)

// ErrMalformedPayload wraps payload decode failures so callers can reject a
// bad message at the boundary instead of failing deep inside business logic.
var ErrMalformedPayload = fmt.Errorf("inbox: malformed payload")

// DecodePayload unmarshals a delivery payload into v.
func DecodePayload(d Delivery, v interface{}) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	return nil
}
