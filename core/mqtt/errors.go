package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing without a live session.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrSubscribeFailed is reported when a post-connect subscription fails.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")
)
