package issuer

import "errors"

var (
	// ErrInvalidCredentials means the identifier/secret pair was rejected.
	// Recoverable: the user may retry with corrected credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshRejected means the refresh token is expired or revoked.
	// Terminal for the session: the caller must force a logout.
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrServiceUnavailable covers network failures, timeouts and 5xx
	// responses. Transient: the caller may retry and must not force a
	// logout on a single occurrence.
	ErrServiceUnavailable = errors.New("identity service unavailable")
)
