package mqtt

import "errors"

var (
	// ErrConnectionFailed wraps the reason the first broker connect failed.
	ErrConnectionFailed = errors.New("mqtt: broker connect failed")

	// ErrNotConnected is returned while the broker link is down.
	ErrNotConnected = errors.New("mqtt: broker link down")

	// ErrPublishFailed wraps encode, timeout and broker publish errors.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrPayloadTooLarge is returned for payloads above maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrSubscribeFailed is returned when the command subscription is refused.
	ErrSubscribeFailed = errors.New("mqtt: command subscription failed")
)
