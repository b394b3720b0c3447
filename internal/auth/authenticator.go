package auth

import (
	"errors"

	"github.com/coursechat/coursechat-server/internal/store"
)

// ErrUnauthenticated is returned when the presented credential is missing
// or invalid. At the socket layer it terminates the handshake.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a verified user identity bound to a connection or request.
type Identity struct {
	UserID int64
	Name   string
	Role   store.Role
}

// Authenticator validates bearer credentials presented at connection time.
// It resolves identity only; registering the connection with presence is
// the caller's job.
type Authenticator struct {
	jwtConfig *JWTConfig
}

// NewAuthenticator creates an authenticator over the given JWT config.
func NewAuthenticator(jwtConfig *JWTConfig) *Authenticator {
	return &Authenticator{jwtConfig: jwtConfig}
}

// Authenticate validates the token and returns the verified identity, or
// ErrUnauthenticated.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims, err := ValidateToken(a.jwtConfig, token)
	if err != nil {
		return Identity{}, errors.Join(ErrUnauthenticated, err)
	}

	role := store.Role(claims.Role)
	switch role {
	case store.RoleStudent, store.RoleInstructor, store.RoleAdmin:
	default:
		role = store.RoleStudent
	}

	return Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Role:   role,
	}, nil
}
