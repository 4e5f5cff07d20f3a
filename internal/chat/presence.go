package chat

import "sort"

// Presence maps user identities to their live connection and push
// subscription. It is not safe for concurrent use; the coordinator owns it.
//
// Subscriptions outlive the live binding so a member who disconnects can still
// be reached by push. They are replaced on re-subscribe and dropped when the
// push service reports the endpoint gone.
type Presence struct {
	conns map[string]ConnID
	subs  map[string]Subscription
}

// NewPresence returns an empty registry.
func NewPresence() *Presence {
	return &Presence{
		conns: make(map[string]ConnID),
		subs:  make(map[string]Subscription),
	}
}

// Register binds user to conn, replacing any previous binding.
func (p *Presence) Register(user string, conn ConnID) {
	p.conns[user] = conn
}

// RecordSubscription attaches sub to a registered user. It reports false and
// does nothing when the user has no live binding.
func (p *Presence) RecordSubscription(user string, sub Subscription) bool {
	if _, ok := p.conns[user]; !ok {
		return false
	}
	p.subs[user] = sub
	return true
}

// Unregister removes the live binding for user.
func (p *Presence) Unregister(user string) bool {
	if _, ok := p.conns[user]; !ok {
		return false
	}
	delete(p.conns, user)
	return true
}

// ClearSubscription drops the stored subscription for user if it still points
// at endpoint. A newer subscription registered in the meantime is kept.
func (p *Presence) ClearSubscription(user, endpoint string) bool {
	sub, ok := p.subs[user]
	if !ok || sub.Endpoint != endpoint {
		return false
	}
	delete(p.subs, user)
	return true
}

// IsOnline reports whether user has a live connection.
func (p *Presence) IsOnline(user string) bool {
	_, ok := p.conns[user]
	return ok
}

// ConnectionOf returns the live connection bound to user.
func (p *Presence) ConnectionOf(user string) (ConnID, bool) {
	c, ok := p.conns[user]
	return c, ok
}

// SubscriptionOf returns the push subscription stored for user.
func (p *Presence) SubscriptionOf(user string) (Subscription, bool) {
	s, ok := p.subs[user]
	return s, ok
}

// Online returns the sorted set of currently bound identities.
func (p *Presence) Online() []string {
	out := make([]string, 0, len(p.conns))
	for user := range p.conns {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}
