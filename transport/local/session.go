package local

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/mcastellin/clustermesh/transport"
)

// Session is a transport.Session backed by an in-process Bus. Every peer
// in a test or demo scenario opens its own Session against the same Bus,
// mirroring how real Zenoh sessions all connect to the same router.
type Session struct {
	zid xid.ID
	bus *Bus
}

// Open creates a new Session with a freshly minted PeerId, attached to bus.
func Open(bus *Bus) *Session {
	return &Session{zid: xid.New(), bus: bus}
}

func (s *Session) Zid() xid.ID {
	return s.zid
}

func (s *Session) DeclareQueryable(keyExpr string, complete bool) (transport.Queryable, error) {
	ch, cancel, err := s.bus.declareQueryable(keyExpr)
	if err != nil {
		return nil, err
	}
	return &queryable{keyExpr: keyExpr, in: ch, cancel: cancel}, nil
}

func (s *Session) DeclareSubscriber(keyExpr string) (transport.Subscriber, error) {
	ch, cancel := s.bus.subscribe(keyExpr, s.zid)
	return &subscriber{in: ch, cancel: cancel}, nil
}

func (s *Session) Liveliness() transport.Liveliness {
	return livelinessImpl{bus: s.bus, origin: s.zid}
}

func (s *Session) Get(keyExpr string) transport.GetBuilder {
	return &getBuilder{bus: s.bus, keyExpr: keyExpr, target: transport.BestMatching}
}

func (s *Session) Put(keyExpr string, payload []byte) error {
	s.bus.publish(sampleKindPut, keyExpr, payload, s.zid)
	return nil
}

type queryable struct {
	keyExpr string
	in      <-chan queryMsg
	cancel  func()
	out     chan transport.Query
	once    bool
}

func (q *queryable) Queries() <-chan transport.Query {
	if q.out == nil {
		q.out = make(chan transport.Query, 64)
		go func() {
			defer close(q.out)
			for msg := range q.in {
				msg := msg
				q.out <- transport.NewQuery(q.keyExpr, msg.payload, func(kind transport.ReplyKind, payload []byte) error {
					msg.replyCh <- queryReply{ok: kind == transport.ReplyOk, payload: payload}
					close(msg.replyCh)
					return nil
				})
			}
		}()
	}
	return q.out
}

func (q *queryable) Undeclare() error {
	q.cancel()
	return nil
}

type subscriber struct {
	in     <-chan sampleMsg
	cancel func()
	out    chan transport.Sample
}

func (s *subscriber) Samples() <-chan transport.Sample {
	if s.out == nil {
		s.out = make(chan transport.Sample, 64)
		go func() {
			defer close(s.out)
			for msg := range s.in {
				kind := transport.Put
				if msg.kind == sampleKindDelete {
					kind = transport.Delete
				}
				s.out <- transport.Sample{Kind: kind, KeyExpr: msg.keyExpr, Payload: msg.payload}
			}
		}()
	}
	return s.out
}

func (s *subscriber) Undeclare() error {
	s.cancel()
	return nil
}

type token struct {
	bus     *Bus
	keyExpr string
	origin  xid.ID
}

func (t *token) Undeclare() error {
	t.bus.undeclareToken(t.keyExpr, t.origin)
	return nil
}

type livelinessImpl struct {
	bus    *Bus
	origin xid.ID
}

func (l livelinessImpl) DeclareToken(keyExpr string) (transport.Token, error) {
	l.bus.declareToken(keyExpr, l.origin)
	return &token{bus: l.bus, keyExpr: keyExpr, origin: l.origin}, nil
}

func (l livelinessImpl) DeclareSubscriber(keyExpr string) (transport.Subscriber, error) {
	ch, cancel := l.bus.subscribe(keyExpr, l.origin)
	return &subscriber{in: ch, cancel: cancel}, nil
}

// Get never reports the querying session's own token, mirroring the same
// no-local-loopback rule DeclareSubscriber observes: a lone node never
// discovers itself through liveliness (spec.md §8 scenario 1).
func (l livelinessImpl) Get(ctx context.Context, keyExpr string) (<-chan transport.Reply, error) {
	keys := l.bus.snapshotTokens(keyExpr, l.origin)
	out := make(chan transport.Reply, len(keys))
	for _, k := range keys {
		out <- transport.Reply{Kind: transport.ReplyOk, KeyExpr: k}
	}
	close(out)
	return out, nil
}

type getBuilder struct {
	bus     *Bus
	keyExpr string
	payload []byte
	target  transport.Target
	timeout time.Duration
}

func (g *getBuilder) Payload(b []byte) transport.GetBuilder {
	g.payload = b
	return g
}

func (g *getBuilder) Target(t transport.Target) transport.GetBuilder {
	g.target = t
	return g
}

func (g *getBuilder) Timeout(d time.Duration) transport.GetBuilder {
	g.timeout = d
	return g
}

func (g *getBuilder) Wait(ctx context.Context) (<-chan transport.Reply, error) {
	replyCh, ok := g.bus.query(g.keyExpr, g.payload)
	if !ok {
		return nil, errNoMatchingQueryable(g.keyExpr)
	}

	out := make(chan transport.Reply, 1)
	deadline := g.timeout
	if deadline <= 0 {
		deadline = 10 * time.Second
	}

	go func() {
		defer close(out)
		timer := time.NewTimer(deadline)
		defer timer.Stop()

		select {
		case reply, ok := <-replyCh:
			if !ok {
				return
			}
			kind := transport.ReplyOk
			if !reply.ok {
				kind = transport.ReplyErr
			}
			out <- transport.Reply{Kind: kind, KeyExpr: g.keyExpr, Payload: reply.payload}
		case <-timer.C:
		case <-ctx.Done():
		}
	}()
	return out, nil
}
