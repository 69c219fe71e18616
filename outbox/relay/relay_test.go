package relay

import (
	"context"
	"testing"
	"time"

	"brokerbox/outbox-relay/outbox"
	relaytest "brokerbox/outbox-relay/outbox/relay/test"
	outboxtest "brokerbox/outbox-relay/outbox/test"

	"github.com/go-test/deep"
	"github.com/google/uuid"
)

func newBatch(msgs ...*outbox.Message) *outbox.Batch {
	return &outbox.Batch{
		Id:       uuid.New(),
		Messages: msgs,
	}
}

func newMessage(id uint64) *outbox.Message {
	return &outbox.Message{
		Id:          id,
		EventType:   "OrderCreated",
		AggregateId: "42",
		Payload:     []byte(`{"total":100}`),
		Exchange:    "orders",
		RoutingKey:  "order.created",
		Status:      outbox.StatusPending,
	}
}

func TestRelay_TickSendsPendingMessages(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	m1 := newMessage(1)
	m2 := newMessage(2)
	repo.AddBatch(newBatch(m1, m2))

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	for _, m := range []*outbox.Message{m1, m2} {
		if !pub.MessageWasPublished(m) {
			t.Errorf("expected message %d to be published", m.Id)
		}
		if !repo.MessageWasSent(m) {
			t.Errorf("expected message %d to be marked as sent", m.Id)
		}
		if m.Status != outbox.StatusSent {
			t.Errorf("expected message %d status %q, but got %q", m.Id, outbox.StatusSent, m.Status)
		}
	}
}

func TestRelay_TickPublishesOldestFirst(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	repo.AddBatch(newBatch(newMessage(3), newMessage(1), newMessage(2)))

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	// the repository hands the batch over already ordered by produced_at;
	// the relay must not reorder it
	if diff := deep.Equal(pub.PublishOrder(), []uint64{3, 1, 2}); diff != nil {
		t.Error(diff)
	}
}

func TestRelay_TickWithNoEvents(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	if pub.PublishCount() != 0 {
		t.Errorf("expected no publishes, but got %d", pub.PublishCount())
	}
}

func TestRelay_TickRecordsFailedAttempt(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	m1 := newMessage(1)
	m2 := newMessage(2)
	pub.ErrorForMessage(m2)
	repo.AddBatch(newBatch(m1, m2))

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	if !repo.MessageWasSent(m1) {
		t.Error("one message failing must not stop the others from being sent")
	}

	if repo.FailureReason(m2) == nil {
		t.Error("expected a failed attempt to be recorded for message 2")
	}
	if repo.MessageWasSent(m2) {
		t.Error("a failed message must not be marked as sent")
	}
	if m2.RetryCount != 1 {
		t.Errorf("expected retry count 1 for message 2, but got %d", m2.RetryCount)
	}
}

func TestRelay_TickSendsAfterTransientFailures(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	m := newMessage(1)
	pub.FailTimes(m, 2)

	rel := New(repo, pub, time.Second, time.Second)

	for i := 0; i < 3; i++ {
		repo.AddBatch(newBatch(m))
		rel.Tick(context.Background())
	}

	if !repo.MessageWasSent(m) {
		t.Error("expected the message to be sent once the transport recovered")
	}
	if m.RetryCount != 2 {
		t.Errorf("expected 2 recorded failed attempts, but got %d", m.RetryCount)
	}
	if m.Status != outbox.StatusSent {
		t.Errorf("expected status %q, but got %q", outbox.StatusSent, m.Status)
	}
}

func TestRelay_TickMovesExhaustedMessageToFailed(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	repo.SetMaxAttempts(1)
	pub := relaytest.NewMockPublisher()

	m := newMessage(1)
	pub.ErrorForMessage(m)
	repo.AddBatch(newBatch(m))

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	if m.Status != outbox.StatusFailed {
		t.Errorf("expected terminal status %q, but got %q", outbox.StatusFailed, m.Status)
	}
}

func TestRelay_TickSkipsWhenAnotherTickIsInFlight(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()
	pub.BlockFor(100 * time.Millisecond)

	repo.AddBatch(newBatch(newMessage(1)))

	rel := New(repo, pub, time.Second, time.Second)

	done := make(chan struct{})
	go func() {
		rel.Tick(context.Background())
		close(done)
	}()

	// give the first tick time to claim its batch and block in the publisher
	time.Sleep(20 * time.Millisecond)

	rel.Tick(context.Background())

	if repo.GetBatchCallCount() != 1 {
		t.Errorf("an overlapping tick must not claim a batch, but the repository was hit %d times", repo.GetBatchCallCount())
	}

	<-done

	// with the first tick finished the relay accepts ticks again
	rel.Tick(context.Background())

	if repo.GetBatchCallCount() != 2 {
		t.Errorf("expected a tick after completion to claim again, but the repository was hit %d times", repo.GetBatchCallCount())
	}
}

func TestRelay_TickReturnsWhenTheDatabaseHangs(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	repo.BlockUntilContextDone()
	pub := relaytest.NewMockPublisher()

	rel := New(repo, pub, time.Second, 50*time.Millisecond)

	start := time.Now()
	rel.Tick(context.Background())

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected the tick to give up on the hung claim, but it took %s", elapsed)
	}

	// the in-flight guard must be released again
	rel.Tick(context.Background())

	if repo.GetBatchCallCount() != 2 {
		t.Errorf("expected a later tick to claim again, but the repository was hit %d times", repo.GetBatchCallCount())
	}
}

func TestRelay_TickBoundsEveryRepositoryCall(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	m1 := newMessage(1)
	m2 := newMessage(2)
	pub.ErrorForMessage(m2)
	repo.AddBatch(newBatch(m1, m2))

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	if !repo.MessageWasSent(m1) || repo.FailureReason(m2) == nil {
		t.Fatal("expected the tick to complete one message and record the other's failure")
	}

	if !repo.CallsCarriedDeadline() {
		t.Error("expected every claim and completion update to carry a deadline")
	}
}

func TestRelay_TickWithRepositoryError(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	repo.ReturnErrors()
	pub := relaytest.NewMockPublisher()

	New(repo, pub, time.Second, time.Second).Tick(context.Background())

	if pub.PublishCount() != 0 {
		t.Errorf("expected no publishes after a claim error, but got %d", pub.PublishCount())
	}
}

func TestRelay_TickPublishesExactlyOncePerClaim(t *testing.T) {
	repo := outboxtest.NewMockRepository()
	pub := relaytest.NewMockPublisher()

	m := newMessage(1)
	repo.AddBatch(newBatch(m))

	rel := New(repo, pub, time.Second, time.Second)
	rel.Tick(context.Background())
	rel.Tick(context.Background())

	if pub.PublishCount() != 1 {
		t.Errorf("expected exactly one publish, but got %d", pub.PublishCount())
	}
}
