package device

import "sync"

// callbackQueue runs queued calls in order on its own goroutine. The queue
// is unbounded, so producers never block on a slow subscriber.
type callbackQueue struct {
	logger Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newCallbackQueue(logger Logger) *callbackQueue {
	q := &callbackQueue{logger: logger, wake: make(chan struct{}, 1)}
	go q.run()
	return q
}

func (q *callbackQueue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
	q.signal()
}

// close lets the goroutine exit once the queue is empty. It does not wait,
// so a queued call may close its own queue.
func (q *callbackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *callbackQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *callbackQueue) run() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()

		q.invoke(fn)
	}
}

func (q *callbackQueue) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("transfer callback panicked", "panic", r)
		}
	}()
	fn()
}
