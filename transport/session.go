// Package transport defines the abstract pub/sub-with-query transport the
// cluster runtime consumes. Per spec.md §1, the real transport (Zenoh) is a
// deliberately out-of-scope external collaborator — this package only
// describes the seam a concrete binding (e.g. a future
// github.com/eclipse-zenoh/zenoh-go adapter) would implement. See
// transport/local for the in-process fake used by this repo's own tests
// and demo CLI.
package transport

import (
	"context"
	"time"

	"github.com/rs/xid"
)

// Kind distinguishes a sample's origin: a fresh publish (Put) or a
// withdrawal (Delete, used by liveliness tokens on undeclare).
type Kind int

const (
	Put Kind = iota
	Delete
)

// Sample is one PUT/DELETE event delivered by a Subscriber.
type Sample struct {
	Kind    Kind
	KeyExpr string
	Payload []byte
}

// Target selects how many/which replicas a Get should reach. This runtime
// only ever needs BestMatching (spec.md §4.4.4: "target = best matching
// (any one replica)").
type Target int

const (
	BestMatching Target = iota
)

// ReplyKind distinguishes a successful query reply from an error reply.
type ReplyKind int

const (
	ReplyOk ReplyKind = iota
	ReplyErr
)

// Reply is one reply delivered on a GetBuilder's channel.
type Reply struct {
	Kind    ReplyKind
	KeyExpr string
	Payload []byte
}

// Queryable serves queries addressed to the declared key expression.
type Queryable interface {
	// Queries delivers inbound queries as they arrive. A query's reply
	// is sent back via the Query's own ReplyOk/ReplyErr method.
	Queries() <-chan Query
	Undeclare() error
}

// Query is one inbound request delivered to a Queryable.
type Query struct {
	KeyExpr string
	Payload []byte // nil for an empty-payload query

	replyFn func(kind ReplyKind, payload []byte) error
}

// NewQuery constructs a Query bound to the given reply callback. Exported
// for use by transport implementations (e.g. transport/local).
func NewQuery(keyExpr string, payload []byte, replyFn func(kind ReplyKind, payload []byte) error) Query {
	return Query{KeyExpr: keyExpr, Payload: payload, replyFn: replyFn}
}

// ReplyOk answers the query with a successful payload.
func (q Query) ReplyOk(payload []byte) error {
	return q.replyFn(ReplyOk, payload)
}

// ReplyErr answers the query with an error payload.
func (q Query) ReplyErr(payload []byte) error {
	return q.replyFn(ReplyErr, payload)
}

// Subscriber delivers PUT/DELETE samples matching a declared key
// expression (wildcards allowed).
type Subscriber interface {
	Samples() <-chan Sample
	Undeclare() error
}

// Token is a liveliness token: present while declared, observed as a
// DELETE sample by peer subscribers once Undeclare is called.
type Token interface {
	Undeclare() error
}

// GetBuilder is the outbound query-with-reply operation (spec.md §4.4.4).
type GetBuilder interface {
	Payload(b []byte) GetBuilder
	Target(t Target) GetBuilder
	Timeout(d time.Duration) GetBuilder
	// Wait issues the get and returns its reply channel. Wait may only be
	// called once per builder.
	Wait(ctx context.Context) (<-chan Reply, error)
}

// Liveliness groups the liveliness-specific operations of a Session.
type Liveliness interface {
	DeclareToken(keyExpr string) (Token, error)
	DeclareSubscriber(keyExpr string) (Subscriber, error)
	// Get returns a one-shot snapshot of currently live tokens matching
	// keyExpr as a reply stream, mirroring the Get operation's shape.
	Get(ctx context.Context, keyExpr string) (<-chan Reply, error)
}

// Session is the full set of transport operations the cluster core
// consumes, matching spec.md §6 exactly.
type Session interface {
	Zid() xid.ID
	DeclareQueryable(keyExpr string, complete bool) (Queryable, error)
	DeclareSubscriber(keyExpr string) (Subscriber, error)
	Liveliness() Liveliness
	Get(keyExpr string) GetBuilder
	Put(keyExpr string, payload []byte) error
}
