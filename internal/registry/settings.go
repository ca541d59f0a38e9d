package registry

import (
	"fmt"
	"time"
)

// HeartbeatSetter is implemented by transports whose links carry a
// keep-alive.
type HeartbeatSetter interface {
	SetHeartbeatInterval(d time.Duration) error
}

// AllowLister is implemented by transports that can restrict discovery to
// a set of addresses.
type AllowLister interface {
	SetAllowList(addrs []string)
}

// SetHeartbeatInterval forwards d to every transport with a heartbeat.
//
// Returns ErrNotSupported if no transport has one.
func (r *Registry) SetHeartbeatInterval(d time.Duration) error {
	applied := false
	for _, f := range r.Families() {
		hs, ok := r.scanners[f].tr.(HeartbeatSetter)
		if !ok {
			continue
		}
		if err := hs.SetHeartbeatInterval(d); err != nil {
			return fmt.Errorf("%s heartbeat: %w", f, err)
		}
		applied = true
	}
	if !applied {
		return ErrNotSupported
	}
	return nil
}

// SetAllowList restricts discovery on every transport that supports it.
// An empty list lifts the restriction. Devices already connected are not
// affected until their endpoint disappears from a later pass.
func (r *Registry) SetAllowList(addrs []string) error {
	applied := false
	for _, f := range r.Families() {
		if al, ok := r.scanners[f].tr.(AllowLister); ok {
			al.SetAllowList(addrs)
			applied = true
		}
	}
	if !applied {
		return ErrNotSupported
	}
	return nil
}
