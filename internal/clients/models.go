// Package clients is the registry of REST clients and the destinations they
// act for.
package clients

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"flowgate/internal/access"
)

// RESTClient is a registered API caller. DestinationID is empty for clients
// that only hold non-destination scopes, such as dispatchers.
type RESTClient struct {
	ClientID      string
	SecretHash    string
	Name          string
	DestinationID string
	Scopes        []access.Scope
	Super         bool
	CreatedAt     time.Time
}

// HashSecret bcrypt-hashes a client secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash client secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches the stored hash.
func (c *RESTClient) VerifySecret(secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// Identity is the access-control view of the client.
func (c *RESTClient) Identity() *access.Identity {
	return &access.Identity{
		ClientID:      c.ClientID,
		DestinationID: c.DestinationID,
		Scopes:        append([]access.Scope(nil), c.Scopes...),
		Super:         c.Super,
	}
}

// AllScopes lists every scope the service knows.
func AllScopes() []access.Scope {
	return []access.Scope{
		access.ScopeFlowRequestRead,
		access.ScopeFlowRequestWrite,
		access.ScopeFlowRequestQuery,
		access.ScopeChannelRead,
		access.ScopeMessagesRead,
		access.ScopeSourcesRead,
	}
}
