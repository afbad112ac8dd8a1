package testutil

import (
	"net/http"

	"flowgate/internal/access"
	"flowgate/pkg/requestcontext"
)

// WithClient attaches an authenticated REST client to the request, the way
// the bearer token middleware would.
func WithClient(req *http.Request, id *access.Identity) *http.Request {
	return req.WithContext(access.WithIdentity(req.Context(), id))
}

// WithSubject attaches the logged-in subject the upstream proxy would assert.
func WithSubject(req *http.Request, user, subjectID string) *http.Request {
	ctx := requestcontext.WithSubject(req.Context(), requestcontext.SubjectInfo{User: user, ID: subjectID})
	return req.WithContext(ctx)
}

// DestinationClient returns an identity owned by destinationID holding scopes.
func DestinationClient(destinationID string, scopes ...access.Scope) *access.Identity {
	return &access.Identity{
		ClientID:      "client-" + destinationID,
		DestinationID: destinationID,
		Scopes:        scopes,
	}
}
