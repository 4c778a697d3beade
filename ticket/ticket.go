package ticket

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTicketInvalid is returned when a ticket fails signature or
	// claim validation.
	ErrTicketInvalid = errors.New("ticket invalid")
	// ErrTicketExpired is returned when a ticket's exp claim has passed.
	ErrTicketExpired = errors.New("ticket expired")
)

const issuerName = "castellan"

// Claims carries the signed content of a force-login ticket. The jti
// claim is the replay handle: redeeming a ticket marks its jti as used
// for the remainder of the ticket's lifetime.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer mints and verifies force-login tickets signed with HS256.
// Issuer instances are safe for concurrent use.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer validates the signing key and default TTL. The key must be
// at least 32 bytes; shorter HMAC keys weaken the whole scheme.
func NewIssuer(key []byte, ttl time.Duration) (*Issuer, error) {
	if len(key) < 32 {
		return nil, errors.New("ticket signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("ticket ttl must be positive")
	}
	return &Issuer{key: key, ttl: ttl}, nil
}

// TTL reports the issuer's ticket lifetime. The replay tombstone for a
// redeemed ticket is kept for the same duration.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a one-time login ticket for username. The returned
// token is opaque to callers; only Redeem should interpret it.
func (i *Issuer) Issue(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("ticket username must not be empty")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.NewString(),
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Redeem verifies a ticket and returns the subject username and jti.
// Callers must consume the jti against the replay store before
// treating the ticket as accepted.
func (i *Issuer) Redeem(tokenStr string) (username, jti string, err error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrTicketExpired
		}
		return "", "", fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" || claims.ID == "" {
		return "", "", ErrTicketInvalid
	}
	return claims.Subject, claims.ID, nil
}
