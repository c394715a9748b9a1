package transport

import "context"

// sessionKey is the unexported context.Context key carrying a Session, per
// spec.md §6's "Context exposes session() -> &Session".
type sessionKey struct{}

// ContextWithSession returns a child context carrying s, retrievable via
// SessionFromContext. Used by the cluster runtime to hand a request
// handler back the Session it arrived on, e.g. to issue its own outbound
// RPCs.
func ContextWithSession(parent context.Context, s Session) context.Context {
	return context.WithValue(parent, sessionKey{}, s)
}

// SessionFromContext retrieves the Session stored by ContextWithSession,
// if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
