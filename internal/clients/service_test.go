package clients

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	dErrors "flowgate/pkg/domain-errors"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())
	require.NoError(t, svc.RegisterDestination(ctx, &models.Destination{ID: "dest-1", Name: "Dest", KafkaPublicKey: "PUB"}))
	require.NoError(t, svc.RegisterClient(ctx, &RESTClient{
		ClientID:      "client-1",
		Name:          "Dest client",
		DestinationID: "dest-1",
		Scopes:        []access.Scope{access.ScopeFlowRequestRead},
	}, "s3cret"))

	c, err := svc.Authenticate(ctx, "client-1", "s3cret")
	require.NoError(t, err)
	id := c.Identity()
	assert.Equal(t, "dest-1", id.DestinationID)
	assert.True(t, id.HasScope(access.ScopeFlowRequestRead))

	_, err = svc.Authenticate(ctx, "client-1", "wrong")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidClient))
	_, err = svc.Authenticate(ctx, "nobody", "s3cret")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidClient))
}

func TestRegisterClientValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemoryStore())

	err := svc.RegisterClient(ctx, &RESTClient{ClientID: "c", Scopes: []access.Scope{"admin:all"}}, "x")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = svc.RegisterClient(ctx, &RESTClient{ClientID: "c", DestinationID: "missing"}, "x")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Destination(ctx, "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
