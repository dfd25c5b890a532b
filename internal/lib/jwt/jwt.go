package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrUnauthenticated = errors.New("no token")
	ErrInvalidToken    = errors.New("invalid token")
)

type UserClaim struct {
	ID string `json:"id"`
}

// Claims is the token payload: {"user":{"id":...},"iat":...} plus "exp"
// when the manager has a ttl.
type Claims struct {
	User UserClaim `json:"user"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens. It keeps no state besides the
// secret, so one value is shared by all requests.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New returns a manager signing with secret. A zero ttl issues tokens
// without expiration.
func New(secret []byte, ttl time.Duration) *Manager {
	return &Manager{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *Manager) Issue(userID string) (string, error) {
	now := m.now()

	claims := Claims{
		User: UserClaim{ID: userID},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify returns the user id bound to tokenString. An empty string fails with
// ErrUnauthenticated, anything that does not verify with ErrInvalidToken.
func (m *Manager) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	if !token.Valid || claims.User.ID == "" {
		return "", ErrInvalidToken
	}

	return claims.User.ID, nil
}
