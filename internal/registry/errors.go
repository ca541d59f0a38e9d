package registry

import "errors"

// Registry errors.
var (
	// ErrScanBusy is returned when a scan is already running for a family.
	ErrScanBusy = errors.New("registry: scan already in progress")

	// ErrScanNotRunning is returned by StopScan when no loop is running.
	ErrScanNotRunning = errors.New("registry: scan not running")

	// ErrUnknownFamily is returned for a family with no transport.
	ErrUnknownFamily = errors.New("registry: no transport for family")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry: closed")

	// ErrNotSupported is returned when no transport accepts a setting.
	ErrNotSupported = errors.New("registry: not supported by any transport")
)
