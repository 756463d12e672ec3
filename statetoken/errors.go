package statetoken

import "errors"

// Package-level errors
var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotInitialized indicates the global codec hasn't been initialized
	ErrNotInitialized = errors.New("statetoken codec not initialized")

	// ErrStateInvalid indicates a malformed token, wrong field count, or
	// signature mismatch. Always security-relevant; never swallowed.
	ErrStateInvalid = errors.New("invalid state token")

	// ErrStateExpired indicates a well-formed, correctly signed token that
	// is older than the verification window.
	ErrStateExpired = errors.New("state token expired")
)
