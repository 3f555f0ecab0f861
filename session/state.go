package session

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// State is the in-memory session state, rebuilt from the credential store on
// startup.
type State int

const (
	// StateUnknown means Initialize has not completed yet. Consumers must
	// wait, not redirect.
	StateUnknown State = iota

	// StateAuthenticated means a usable credential is held.
	StateAuthenticated

	// StateUnauthenticated means no usable credential is held.
	StateUnauthenticated

	// StateRenewing means a refresh exchange is in flight. At most one
	// renewal is ever in flight; concurrent triggers coalesce into it.
	StateRenewing
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRenewing:
		return "renewing"
	}
	return "invalid"
}

// User is the identity carried by the access token's claims. The client holds
// no issuer keys, so claims are read unverified; signature checking is the
// server's job on every request the token accompanies.
type User struct {
	ID    string
	Email string
	Name  string
}

type accessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// userFromToken extracts the user identity from a JWT access token.
// A token that does not parse is treated as corrupt.
func userFromToken(accessToken string) (User, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return User{}, errors.Wrap(err, "[userFromToken] parse access token")
	}
	return User{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}
