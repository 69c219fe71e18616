package inbox

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/pkg/errors"
)

func TestDecodePayload(t *testing.T) {
	d := Delivery{
		MessageId: "msg-1",
		Payload:   []byte(`{"eventType":"OrderCreated","aggregateId":"42"}`),
	}

	var evt struct {
		EventType   string `json:"eventType"`
		AggregateId string `json:"aggregateId"`
	}

	if err := DecodePayload(d, &evt); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if diff := deep.Equal(evt.EventType, "OrderCreated"); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(evt.AggregateId, "42"); diff != nil {
		t.Error(diff)
	}
}

func TestDecodePayloadWithMalformedPayload(t *testing.T) {
	d := Delivery{
		MessageId: "msg-1",
		Payload:   []byte(`{"eventType":`),
	}

	var evt map[string]interface{}

	err := DecodePayload(d, &evt)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, but got %v", err)
	}
}
