package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session")

// Session identifies the logged-in user of a request. It lives only in the
// signed cookie and the request context.
type Session struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionCodec signs sessions into cookie values and verifies them back.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to newly issued sessions.
func (c *SessionCodec) TTL() time.Duration { return c.ttl }

// Issue creates a session for the user and returns it with its signed token.
func (c *SessionCodec) Issue(userID int64, username string) (Session, string, error) {
	now := c.now()
	s := Session{
		UserID:    userID,
		Username:  username,
		ExpiresAt: now.Add(c.ttl).Truncate(time.Second),
	}

	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session: %w", err)
	}
	return s, token, nil
}

// Parse verifies the token signature and expiry.
func (c *SessionCodec) Parse(token string) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("%w: bad subject %q", ErrInvalidSession, claims.Subject)
	}

	return Session{
		UserID:    userID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// NeedsRenewal reports whether less than half of the session lifetime is left.
func (c *SessionCodec) NeedsRenewal(s Session) bool {
	return s.ExpiresAt.Sub(c.now()) < c.ttl/2
}
