// Package oauth issues and validates the bearer tokens REST clients obtain
// through the client-credentials grant.
package oauth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"flowgate/internal/access"
	dErrors "flowgate/pkg/domain-errors"
)

// Claims are the access token claims. Scope is space separated as in RFC 6749.
type Claims struct {
	ClientID      string `json:"client_id"`
	DestinationID string `json:"destination_id,omitempty"`
	Scope         string `json:"scope"`
	Super         bool   `json:"super,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs tokens with HS256.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for id and its lifetime.
func (s *TokenService) Issue(id *access.Identity) (string, time.Duration, error) {
	now := s.now()
	scopes := make([]string, len(id.Scopes))
	for i, sc := range id.Scopes {
		scopes[i] = string(sc)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID:      id.ClientID,
		DestinationID: id.DestinationID,
		Scope:         strings.Join(scopes, " "),
		Super:         id.Super,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ClientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", 0, dErrors.Wrap(err, dErrors.CodeInternal, "sign access token")
	}
	return signed, s.ttl, nil
}

// ValidateToken parses a bearer token into the identity it was issued to.
func (s *TokenService) ValidateToken(tokenString string) (*access.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ClientID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	id := &access.Identity{
		ClientID:      claims.ClientID,
		DestinationID: claims.DestinationID,
		Super:         claims.Super,
	}
	for _, sc := range strings.Fields(claims.Scope) {
		id.Scopes = append(id.Scopes, access.Scope(sc))
	}
	return id, nil
}
