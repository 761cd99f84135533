package transport

import (
	"context"
	"sync"
)

// chunkQueue collects bytes from a reader goroutine for non-blocking
// consumption.
type chunkQueue struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	signal chan struct{}
}

func newChunkQueue() *chunkQueue {
	return &chunkQueue{signal: make(chan struct{}, 1)}
}

func (q *chunkQueue) push(p []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	q.mu.Unlock()
	q.notify()
}

func (q *chunkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *chunkQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *chunkQueue) drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.buf
	q.buf = nil
	return out
}

func (q *chunkQueue) wait(ctx context.Context) bool {
	for {
		q.mu.Lock()
		pending, closed := len(q.buf) > 0, q.closed
		q.mu.Unlock()
		if pending {
			return true
		}
		if closed {
			return false
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return false
		}
	}
}
