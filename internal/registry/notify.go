package registry

import "sync"

// ChangeFunc receives connect (true) and disconnect (false) transitions.
type ChangeFunc func(sn string, connected bool)

type change struct {
	sn        string
	connected bool
}

// notifier delivers changes in order on its own goroutine. The queue is
// unbounded so discovery never blocks on a slow subscriber.
type notifier struct {
	logger Logger

	mu      sync.Mutex
	queue   []change
	cb      ChangeFunc
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func newNotifier(logger Logger) *notifier {
	n := &notifier{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) setCallback(cb ChangeFunc) {
	n.mu.Lock()
	n.cb = cb
	n.mu.Unlock()
}

func (n *notifier) push(sn string, connected bool) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, change{sn: sn, connected: connected})
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close delivers everything already queued, then stops.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.stopped
}

func (n *notifier) run() {
	defer close(n.stopped)
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			closed := n.closed
			n.mu.Unlock()
			if closed {
				return
			}
			<-n.wake
			continue
		}
		c := n.queue[0]
		n.queue = n.queue[1:]
		cb := n.cb
		n.mu.Unlock()

		if cb != nil {
			n.invoke(cb, c)
		}
	}
}

func (n *notifier) invoke(cb ChangeFunc, c change) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("change callback panicked", "sn", c.sn, "panic", r)
		}
	}()
	cb(c.sn, c.connected)
}
