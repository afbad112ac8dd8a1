// Package requestcontext provides HTTP-independent accessors for
// request-scoped values set by middleware and read by services.
//
// Usage in services:
//
//	now := requestcontext.Now(ctx)
//	subject := requestcontext.Subject(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithSubject(ctx, requestcontext.SubjectInfo{User: "alice", ID: "CF123"})
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	subjectKey     struct{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time.
// Falls back to time.Now() outside HTTP requests (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// ClientIP retrieves the caller IP address.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the caller User-Agent.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// SubjectInfo is the human authenticated by the upstream identity proxy.
// ID is the subject identifier used on flow requests; it may be empty for
// a logged-in user without one.
type SubjectInfo struct {
	User string
	ID   string
}

// Authenticated reports whether a subject login happened.
func (s SubjectInfo) Authenticated() bool { return s.User != "" }

// Subject retrieves the authenticated subject, or the zero value.
func Subject(ctx context.Context) SubjectInfo {
	if s, ok := ctx.Value(subjectKey{}).(SubjectInfo); ok {
		return s
	}
	return SubjectInfo{}
}

// WithSubject injects the authenticated subject.
func WithSubject(ctx context.Context, s SubjectInfo) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}
