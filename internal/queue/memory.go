package queue

import (
	"context"
	"fmt"
	"sync"
)

// memoryBufferSize is how many undelivered messages a subject holds
// before Publish starts failing.
const memoryBufferSize = 10000

// MemoryQueue is a process-local Queue for tests and single-node
// development. Messages never leave the process and are lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	subs   map[string]chan struct{} // closed to stop the dispatch loop
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		topics: make(map[string]chan []byte),
		subs:   make(map[string]chan struct{}),
	}
}

// topicLocked returns the channel for subject, creating it if needed.
// Callers hold q.mu.
func (q *MemoryQueue) topicLocked(subject string) chan []byte {
	ch, ok := q.topics[subject]
	if !ok {
		ch = make(chan []byte, memoryBufferSize)
		q.topics[subject] = ch
	}
	return ch
}

// Publish enqueues a copy of data for subject. It fails when the subject
// buffer is full rather than block the caller.
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	ch := q.topicLocked(subject)
	q.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case ch <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("memory queue: subject %s is full", subject)
	}
}

// PublishBatch enqueues every message it can and reports the count.
// Full subjects are skipped, not retried.
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	accepted := 0
	for _, m := range messages {
		if ctx.Err() != nil {
			return accepted, ctx.Err()
		}
		if err := q.Publish(ctx, m.Subject, m.Data); err == nil {
			accepted++
		}
	}
	return accepted, nil
}

// Subscribe starts a goroutine feeding subject's messages to handler.
// Handler errors drop the message; the in-process queue has no redelivery.
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	if _, dup := q.subs[subject]; dup {
		q.mu.Unlock()
		return fmt.Errorf("memory queue: duplicate subscription for %s", subject)
	}
	stop := make(chan struct{})
	q.subs[subject] = stop
	ch := q.topicLocked(subject)
	q.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				_ = handler(data)
			}
		}
	}()

	return nil
}

// Unsubscribe stops the dispatch loop for subject. Buffered messages stay
// queued for a later subscription.
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop, ok := q.subs[subject]
	if !ok {
		return fmt.Errorf("memory queue: no subscription for %s", subject)
	}
	close(stop)
	delete(q.subs, subject)
	return nil
}

// Close stops all dispatch loops and drops buffered messages.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, stop := range q.subs {
		close(stop)
		delete(q.subs, subject)
	}
	for subject, ch := range q.topics {
		close(ch)
		delete(q.topics, subject)
	}
	return nil
}

// Pending reports how many messages sit undelivered for subject.
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.topics[subject])
}
