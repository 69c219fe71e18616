package test

import (
	"context"
	"errors"
	"sync"
	"time"

	"brokerbox/outbox-relay/outbox"
)

type MockPublisher struct {
	sync.RWMutex
	publishedMessages []*outbox.Message
	errors            map[*outbox.Message]error
	failuresLeft      map[*outbox.Message]int
	blockFor          time.Duration
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedMessages: []*outbox.Message{},
		errors:            map[*outbox.Message]error{},
		failuresLeft:      map[*outbox.Message]int{},
	}
}

func (p *MockPublisher) Publish(ctx context.Context, m *outbox.Message) error {
	p.Lock()
	defer p.Unlock()

	if p.blockFor > 0 {
		select {
		case <-time.After(p.blockFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if left, ok := p.failuresLeft[m]; ok && left > 0 {
		p.failuresLeft[m] = left - 1
		return errors.New("transient transport error")
	}

	if err, ok := p.errors[m]; ok {
		return err
	}

	p.publishedMessages = append(p.publishedMessages, m)

	return nil
}

func (p *MockPublisher) MessageWasPublished(exp *outbox.Message) bool {
	p.RLock()
	defer p.RUnlock()
	for _, m := range p.publishedMessages {
		if m == exp {
			return true
		}
	}

	return false
}

// PublishOrder returns the record ids in the order they were handed over.
func (p *MockPublisher) PublishOrder() []uint64 {
	p.RLock()
	defer p.RUnlock()

	var ids []uint64
	for _, m := range p.publishedMessages {
		ids = append(ids, m.Id)
	}

	return ids
}

func (p *MockPublisher) PublishCount() int {
	p.RLock()
	defer p.RUnlock()

	return len(p.publishedMessages)
}

func (p *MockPublisher) ErrorForMessage(m *outbox.Message) {
	p.Lock()
	defer p.Unlock()
	p.errors[m] = errors.New("foo")
}

// FailTimes makes the next n publishes of m fail before it succeeds.
func (p *MockPublisher) FailTimes(m *outbox.Message, n int) {
	p.Lock()
	defer p.Unlock()
	p.failuresLeft[m] = n
}

func (p *MockPublisher) BlockFor(d time.Duration) {
	p.Lock()
	defer p.Unlock()
	p.blockFor = d
}

func (p *MockPublisher) Close() error {
	return nil
}
