package netlink

import "errors"

var (
	// ErrInvalidInterval is returned for a non-positive heartbeat interval.
	ErrInvalidInterval = errors.New("netlink: heartbeat interval must be positive")

	// ErrDialFailed is returned by Open when every dial attempt failed.
	ErrDialFailed = errors.New("netlink: dial failed")
)
