package test

import (
	"sync"

	"github.com/Shopify/sarama"
)

type MockSyncProducer struct {
	mu       sync.RWMutex
	produced []*sarama.ProducerMessage
	err      error
	closed   bool
}

func NewMockSyncProducer() *MockSyncProducer {
	return &MockSyncProducer{
		produced: []*sarama.ProducerMessage{},
	}
}

func (p *MockSyncProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return 0, 0, p.err
	}

	p.produced = append(p.produced, msg)

	return 0, int64(len(p.produced)), nil
}

func (p *MockSyncProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	for _, msg := range msgs {
		if _, _, err := p.SendMessage(msg); err != nil {
			return err
		}
	}

	return nil
}

func (p *MockSyncProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	return nil
}

func (p *MockSyncProducer) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockSyncProducer) Produced() []*sarama.ProducerMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.produced
}

func (p *MockSyncProducer) WasClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.closed
}
