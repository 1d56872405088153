package auth

import "errors"

// Sentinel errors for token handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTokenInvalid is returned when a token fails signature, expiry,
	// or claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
