package userregistry

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSessionToken covers malformed, unsigned, or wrong-type tokens.
var ErrInvalidSessionToken = errors.New("invalid session token")

// ErrExpiredSessionToken signals a token past its TTL; the caller falls
// back to the bare-username reconnection policy rather than rejecting
// the connection outright (spec.md §9 open question on reconnection).
var ErrExpiredSessionToken = errors.New("session token has expired")

// sessionClaims binds a session-resumption token to one userId/username
// pair. Adapted from the teacher's access/refresh JWTManager down to a
// single token type — this spec has no login flow to refresh against,
// just a short-TTL token a reconnecting client can present instead of a
// bare username (SPEC_FULL.md DOMAIN STACK: **[ADD]**).
type sessionClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// sessionTokenManager issues and validates session-resumption tokens.
type sessionTokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func newSessionTokenManager(secret string, ttl time.Duration, issuer string) *sessionTokenManager {
	return &sessionTokenManager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// issue mints a signed token binding userID to username, valid for ttl.
func (m *sessionTokenManager) issue(userID, username string) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// validate parses tokenString and returns the bound userID/username. A
// caller that gets ErrExpiredSessionToken or ErrInvalidSessionToken
// should fall through to treating the connection as a fresh username,
// not reject it — the token only narrows trust, it doesn't gate access.
func (m *sessionTokenManager) validate(tokenString string) (userID, username string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSessionToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredSessionToken
		}
		return "", "", ErrInvalidSessionToken
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidSessionToken
	}
	return claims.UserID, claims.Username, nil
}
