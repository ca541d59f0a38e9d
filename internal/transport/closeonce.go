package transport

import "sync"

// CloseOnce wraps a channel with sync.Once to prevent double-close panics.
// Channel implementations use it as their shutdown signal.
type CloseOnce struct {
	ch   chan struct{}
	once sync.Once
}

// NewCloseOnce returns an open signal.
func NewCloseOnce() *CloseOnce {
	return &CloseOnce{ch: make(chan struct{})}
}

// Close closes the signal. Later calls do nothing.
func (c *CloseOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

// Done is closed once Close has been called.
func (c *CloseOnce) Done() <-chan struct{} {
	return c.ch
}

// Closed reports whether Close has been called.
func (c *CloseOnce) Closed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}
