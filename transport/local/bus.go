// Package local implements an in-process, in-memory transport.Session used
// by this repo's own tests and the demo CLI to exercise the cluster runtime
// without a real Zenoh deployment. It is not a production transport — see
// SPEC_FULL.md §8 for why a real binding is out of scope here.
package local

import (
	"sync"

	"github.com/rs/xid"
)

type subscription struct {
	pattern string
	origin  xid.ID
	ch      chan sampleMsg
}

type sampleMsg struct {
	kind    int
	keyExpr string
	payload []byte
}

// Bus is the shared broker multiple Sessions attach to, modeling the
// Zenoh router every real session would otherwise dial into. It tracks
// declared queryables, active subscriptions, and live liveliness tokens,
// and does pattern matching with Zenoh-style key expression wildcards.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscription
	nextSubID   int
	queryables  map[string]chan queryMsg
	tokens      map[string]xid.ID // keyExpr -> declaring session
}

// NewBus creates an empty, unconnected Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: map[int]*subscription{},
		queryables:  map[string]chan queryMsg{},
		tokens:      map[string]xid.ID{},
	}
}

// subscribe registers a pattern subscription on behalf of origin. Per
// Zenoh's default (no local loopback), a session never receives its own
// publications back on a matching subscription — see publish below.
func (b *Bus) subscribe(pattern string, origin xid.ID) (<-chan sampleMsg, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan sampleMsg, 64)
	b.subscribers[id] = &subscription{pattern: pattern, origin: origin, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			close(sub.ch)
			delete(b.subscribers, id)
		}
	}
	return ch, cancel
}

// publish fans a sample out to every subscription matching keyExpr, except
// ones declared by origin itself: a session never observes its own puts or
// liveliness declarations, matching Zenoh's default no-local-loopback
// behavior. This is what makes a lone node's own liveliness token
// invisible to its own registry (spec.md §8 scenario 1).
func (b *Bus) publish(kind int, keyExpr string, payload []byte, origin xid.ID) {
	b.mu.Lock()
	matches := make([]chan sampleMsg, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.origin == origin {
			continue
		}
		if matchKeyExpr(sub.pattern, keyExpr) {
			matches = append(matches, sub.ch)
		}
	}
	b.mu.Unlock()

	msg := sampleMsg{kind: kind, keyExpr: keyExpr, payload: payload}
	for _, ch := range matches {
		ch <- msg
	}
}

func (b *Bus) declareToken(keyExpr string, origin xid.ID) {
	b.mu.Lock()
	b.tokens[keyExpr] = origin
	b.mu.Unlock()
	b.publish(sampleKindPut, keyExpr, nil, origin)
}

func (b *Bus) undeclareToken(keyExpr string, origin xid.ID) {
	b.mu.Lock()
	delete(b.tokens, keyExpr)
	b.mu.Unlock()
	b.publish(sampleKindDelete, keyExpr, nil, origin)
}

// snapshotTokens returns every live token matching pattern, excluding any
// token declared by origin itself — liveliness().get() never reports the
// querying session's own token, the same no-local-loopback rule publish
// applies to live subscriptions.
func (b *Bus) snapshotTokens(pattern string, origin xid.ID) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for k, owner := range b.tokens {
		if owner == origin {
			continue
		}
		if matchKeyExpr(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

type queryMsg struct {
	payload []byte
	replyCh chan queryReply
}

type queryReply struct {
	ok      bool
	payload []byte
}

func (b *Bus) declareQueryable(keyExpr string) (<-chan queryMsg, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.queryables[keyExpr]; exists {
		return nil, nil, errQueryableExists(keyExpr)
	}
	ch := make(chan queryMsg, 64)
	b.queryables[keyExpr] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.queryables[keyExpr]; ok && existing == ch {
			close(ch)
			delete(b.queryables, keyExpr)
		}
	}
	return ch, cancel, nil
}

func (b *Bus) query(keyExpr string, payload []byte) (chan queryReply, bool) {
	b.mu.Lock()
	ch, ok := b.queryables[keyExpr]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}

	replyCh := make(chan queryReply, 1)
	ch <- queryMsg{payload: payload, replyCh: replyCh}
	return replyCh, true
}

const (
	sampleKindPut = iota
	sampleKindDelete
)
