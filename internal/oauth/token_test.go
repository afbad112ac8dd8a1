package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/access"
	dErrors "flowgate/pkg/domain-errors"
)

var identity = &access.Identity{
	ClientID:      "client-1",
	DestinationID: "dest-1",
	Scopes:        []access.Scope{access.ScopeFlowRequestRead, access.ScopeMessagesRead},
}

func TestIssueAndValidate(t *testing.T) {
	svc := NewTokenService("test-signing-key", "flowgate", time.Hour)

	token, ttl, err := svc.Issue(identity)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := NewTokenService("test-signing-key", "flowgate", time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("invalid-token-string")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenService("test-signing-key", "flowgate", -time.Hour)
		token, _, err := expired.Issue(identity)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("other signing key", func(t *testing.T) {
		other := NewTokenService("another-key", "flowgate", time.Hour)
		token, _, err := other.Issue(identity)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("other issuer", func(t *testing.T) {
		other := NewTokenService("test-signing-key", "someone-else", time.Hour)
		token, _, err := other.Issue(identity)
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
