package test

import (
	"context"
	"errors"
	"sync"
	"time"

	"brokerbox/outbox-relay/outbox"
)

type MockRepository struct {
	sync.RWMutex
	getBatchCallCount int
	mockQueueSize     uint
	mockTotalSize     uint
	batchesToReturn   []*outbox.Batch
	sent              []*outbox.Message
	failed            map[*outbox.Message]error
	maxAttempts       int
	deletedRowsCount  int64
	returnError       bool
	returnUpdateError bool
	blockOnCtx        bool
	unboundedCalls    int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		batchesToReturn: []*outbox.Batch{},
		failed:          map[*outbox.Message]error{},
		maxAttempts:     3,
	}
}

func (mr *MockRepository) GetBatch(ctx context.Context) (*outbox.Batch, error) {
	mr.Lock()
	defer mr.Unlock()
	mr.getBatchCallCount++
	mr.noteDeadline(ctx)

	if mr.blockOnCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if mr.returnError {
		return nil, errors.New("oops")
	}

	b := mr.popBatch()
	if b == nil {
		return nil, outbox.ErrNoEvents
	}

	return b, nil
}

func (mr *MockRepository) MarkSent(ctx context.Context, m *outbox.Message) error {
	mr.Lock()
	defer mr.Unlock()
	mr.noteDeadline(ctx)

	if mr.returnUpdateError {
		return errors.New("oops")
	}

	m.Status = outbox.StatusSent
	mr.sent = append(mr.sent, m)

	return nil
}

func (mr *MockRepository) MarkFailedAttempt(ctx context.Context, m *outbox.Message, cause error) error {
	mr.Lock()
	defer mr.Unlock()
	mr.noteDeadline(ctx)

	if mr.returnUpdateError {
		return errors.New("oops")
	}

	m.RetryCount++
	if m.RetryCount >= mr.maxAttempts {
		m.Status = outbox.StatusFailed
	}
	mr.failed[m] = cause

	return nil
}

func (mr *MockRepository) DeleteSent(ctx context.Context, olderThan time.Time) (int64, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.deletedRowsCount, nil
}

func (mr *MockRepository) GetQueueSize(ctx context.Context) (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockQueueSize, nil
}

func (mr *MockRepository) GetTotalSize(ctx context.Context) (uint, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}

	return mr.mockTotalSize, nil
}

func (mr *MockRepository) AddBatch(batch *outbox.Batch) {
	mr.Lock()
	defer mr.Unlock()
	mr.batchesToReturn = append(mr.batchesToReturn, batch)
}

func (mr *MockRepository) MessageWasSent(m *outbox.Message) bool {
	mr.RLock()
	defer mr.RUnlock()
	for _, s := range mr.sent {
		if s == m {
			return true
		}
	}

	return false
}

func (mr *MockRepository) FailureReason(m *outbox.Message) error {
	mr.RLock()
	defer mr.RUnlock()

	return mr.failed[m]
}

func (mr *MockRepository) GetBatchCallCount() int {
	mr.RLock()
	defer mr.RUnlock()

	return mr.getBatchCallCount
}

func (mr *MockRepository) SetMaxAttempts(max int) {
	mr.maxAttempts = max
}

func (mr *MockRepository) ReturnErrors() {
	mr.returnError = true
}

func (mr *MockRepository) ReturnUpdateErrors() {
	mr.returnUpdateError = true
}

func (mr *MockRepository) SetQueueSize(size uint) {
	mr.mockQueueSize = size
}

func (mr *MockRepository) SetTotalSize(size uint) {
	mr.mockTotalSize = size
}

func (mr *MockRepository) SetDeletedRowsCount(c int64) {
	mr.deletedRowsCount = c
}

// BlockUntilContextDone makes GetBatch hang until the caller's context
// expires, like a database that stopped answering.
func (mr *MockRepository) BlockUntilContextDone() {
	mr.blockOnCtx = true
}

// CallsCarriedDeadline reports whether every GetBatch/MarkSent/
// MarkFailedAttempt call so far arrived with a context deadline.
func (mr *MockRepository) CallsCarriedDeadline() bool {
	mr.RLock()
	defer mr.RUnlock()

	return mr.unboundedCalls == 0
}

func (mr *MockRepository) noteDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		mr.unboundedCalls++
	}
}

func (mr *MockRepository) popBatch() *outbox.Batch {
	if len(mr.batchesToReturn) == 0 {
		return nil
	}

	var b *outbox.Batch
	b, mr.batchesToReturn = mr.batchesToReturn[0], mr.batchesToReturn[1:]

	return b
}
