package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	standard := &Identity{
		ClientID:      "dest-1-client",
		DestinationID: "dest-1",
		Scopes:        []Scope{ScopeFlowRequestRead, ScopeFlowRequestWrite, ScopeMessagesRead},
	}
	super := &Identity{
		ClientID: "dispatcher",
		Scopes:   []Scope{ScopeFlowRequestRead, ScopeFlowRequestQuery},
		Super:    true,
	}
	powerless := &Identity{ClientID: "powerless", DestinationID: "dest-1"}

	tests := []struct {
		name     string
		identity *Identity
		op       Operation
		want     Decision
	}{
		{
			name: "nil identity is not authenticated",
			op:   Operation{Resource: ResourceFlowRequest, Action: ActionRead},
			want: Decision{Reason: ReasonNotAuthenticated},
		},
		{
			name:     "owner with scope is allowed",
			identity: standard,
			op:       Operation{Resource: ResourceFlowRequest, Action: ActionRead, Owner: "dest-1"},
			want:     Decision{Allowed: true},
		},
		{
			name:     "other destination is forbidden as owner mismatch",
			identity: standard,
			op:       Operation{Resource: ResourceFlowRequest, Action: ActionRead, Owner: "dest-2"},
			want:     Decision{Reason: ReasonForbidden, OwnerMismatch: true},
		},
		{
			name:     "missing scope is forbidden",
			identity: standard,
			op:       Operation{Resource: ResourceFlowRequest, Action: ActionQuery},
			want:     Decision{Reason: ReasonForbidden},
		},
		{
			name:     "client without scopes is forbidden",
			identity: powerless,
			op:       Operation{Resource: ResourceMessages, Action: ActionRead, Owner: "dest-1"},
			want:     Decision{Reason: ReasonForbidden},
		},
		{
			name:     "super bypasses ownership",
			identity: super,
			op:       Operation{Resource: ResourceFlowRequest, Action: ActionRead, Owner: "dest-2"},
			want:     Decision{Allowed: true},
		},
		{
			name:     "super does not bypass scopes",
			identity: super,
			op:       Operation{Resource: ResourceFlowRequest, Action: ActionWrite},
			want:     Decision{Reason: ReasonForbidden},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.identity, tt.op))
		})
	}
}

func TestOwnerFilter(t *testing.T) {
	assert.Equal(t, "dest-1", OwnerFilter(&Identity{ClientID: "c", DestinationID: "dest-1"}))
	assert.Equal(t, "", OwnerFilter(&Identity{ClientID: "c", DestinationID: "dest-1", Super: true}))
}
