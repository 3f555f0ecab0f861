package session

import "errors"

var (
	// ErrSessionExpired means no valid access token can be produced: there is
	// no credential, the refresh token was rejected, or the retry budget
	// against a 401 is exhausted. The user must sign in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotInitialized means an operation ran before Initialize.
	ErrNotInitialized = errors.New("session manager not initialized")
)
