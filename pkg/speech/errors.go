package speech

import "errors"

var (
	// ErrAlreadyStarted is returned by Start while a session is running.
	ErrAlreadyStarted = errors.New("speech: recognition already started")

	// ErrNoGatewayURL is returned when the gateway URL is missing.
	ErrNoGatewayURL = errors.New("speech: gateway URL required")

	// ErrNilHandler is returned by Start when no handler is given.
	ErrNilHandler = errors.New("speech: handler required")
)
