// Package access decides whether an authenticated REST client may perform
// an operation. Evaluate is pure: it reads the identity and the operation
// and returns a Decision.
package access

import (
	"context"
	"slices"
)

// Scope is a capability granted to a client, written resource:action.
type Scope string

const (
	ScopeFlowRequestRead  Scope = "flow_request:read"
	ScopeFlowRequestWrite Scope = "flow_request:write"
	ScopeFlowRequestQuery Scope = "flow_request:query"
	ScopeChannelRead      Scope = "channel:read"
	ScopeMessagesRead     Scope = "messages:read"
	ScopeSourcesRead      Scope = "sources:read"
)

// Resource is the kind of entity an operation touches.
type Resource string

const (
	ResourceFlowRequest Resource = "flow_request"
	ResourceChannel     Resource = "channel"
	ResourceMessages    Resource = "messages"
	ResourceSources     Resource = "sources"
)

// Action is what the operation does to the resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionQuery Action = "query"
)

// Identity is an authenticated REST client.
type Identity struct {
	ClientID      string
	DestinationID string
	Scopes        []Scope
	Super         bool
}

// HasScope reports whether the identity was granted s.
func (i *Identity) HasScope(s Scope) bool {
	return slices.Contains(i.Scopes, s)
}

// Operation describes a request. Owner is the destination owning the target
// resource; empty when the operation is not about a specific resource.
type Operation struct {
	Resource Resource
	Action   Action
	Owner    string
}

// Reason tags a denial.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonForbidden        Reason = "forbidden"
)

// Decision is the gate's answer. OwnerMismatch marks a denial caused only by
// ownership, which read endpoints report as not found.
type Decision struct {
	Allowed       bool
	Reason        Reason
	OwnerMismatch bool
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason Reason) Decision { return Decision{Reason: reason} }

// RequiredScope maps an operation to the scope that grants it.
func RequiredScope(op Operation) Scope {
	return Scope(string(op.Resource) + ":" + string(op.Action))
}

// Evaluate applies scope then ownership. Super clients skip ownership only.
func Evaluate(id *Identity, op Operation) Decision {
	if id == nil || id.ClientID == "" {
		return deny(ReasonNotAuthenticated)
	}
	if !id.HasScope(RequiredScope(op)) {
		return deny(ReasonForbidden)
	}
	if id.Super || op.Owner == "" {
		return allow()
	}
	if id.DestinationID == "" || id.DestinationID != op.Owner {
		return Decision{Reason: ReasonForbidden, OwnerMismatch: true}
	}
	return allow()
}

// OwnerFilter returns the destination a listing must be restricted to, or
// "" when the identity may see every destination.
func OwnerFilter(id *Identity) string {
	if id == nil || id.Super {
		return ""
	}
	return id.DestinationID
}

type identityKey struct{}

// WithIdentity stores the authenticated client in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the authenticated client, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
