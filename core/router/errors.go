package router

import "errors"

var (
	// ErrMalformedRequest is returned for bootstrap requests lacking a usable
	// deviceId or nonce. No reply is sent for them.
	ErrMalformedRequest = errors.New("malformed bootstrap request")
	// ErrUnknownBootstrapID is returned for data published under a namespace
	// that no bootstrap record owns.
	ErrUnknownBootstrapID = errors.New("unknown bootstrap id")
	// ErrInvalidPayload is returned by DecodePayload for anything but a JSON object.
	ErrInvalidPayload = errors.New("payload is not a JSON object")
)
