package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	XActorKindHeader       = "X-Actor-Kind"
	XActorIDHeader         = "X-Actor-Id"
	XActorDepartmentHeader = "X-Actor-Department"
)

var ErrInvalidToken = errors.New("invalid token")

type identityKey struct{}

// Identity is the authenticated caller as the transport sees it.
type Identity struct {
	Kind         string
	ID           string
	DepartmentID string
}

type Claims struct {
	jwt.RegisteredClaims
	Kind       string `json:"kind"`
	Department string `json:"dept,omitempty"`
}

func SetIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func NewToken(secret []byte, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:       id.Kind,
		Department: id.DepartmentID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies an HS256 token and returns the identity it carries.
func ParseToken(secret []byte, tokenStr string) (Identity, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Identity{}, errors.Wrap(ErrInvalidToken, "parse")
	}
	if claims.Subject == "" || claims.Kind == "" {
		return Identity{}, errors.Wrap(ErrInvalidToken, "empty subject")
	}
	return Identity{Kind: claims.Kind, ID: claims.Subject, DepartmentID: claims.Department}, nil
}
