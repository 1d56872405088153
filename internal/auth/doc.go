// Package auth provides JWT token handling for Telegate.
//
// The gateway does not manage users or issue tokens to end users; that is the
// collaborator HTTP layer's job. This package verifies the tokens that layer
// signs (shared HS256 secret) when WebSocket clients connect, and generates
// tokens in tests.
//
// # Usage
//
//	claims, err := auth.ParseToken(tokenString, cfg.Security.JWT.Secret)
//	if err != nil {
//	    // reject the connection
//	}
//	userID := claims.Subject
//
// # Security
//
//   - HS256 only; other signing methods are rejected
//   - Expiry and subject are always enforced
//   - The secret must be at least 32 characters (enforced by config validation)
package auth
