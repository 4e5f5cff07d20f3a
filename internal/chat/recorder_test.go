package chat

import "testing"

type delivery struct {
	conn ConnID
	ev   Event
}

type recorder struct {
	out []delivery
}

func (r *recorder) Deliver(conn ConnID, ev Event) {
	r.out = append(r.out, delivery{conn: conn, ev: ev})
}

func (r *recorder) reset() { r.out = nil }

// to returns the events delivered to conn, in order.
func (r *recorder) to(conn ConnID) []Event {
	var evs []Event
	for _, d := range r.out {
		if d.conn == conn {
			evs = append(evs, d.ev)
		}
	}
	return evs
}

// named returns the payloads of events called name delivered to conn.
func (r *recorder) named(conn ConnID, name string) []any {
	var out []any
	for _, ev := range r.to(conn) {
		if ev.Name == name {
			out = append(out, ev.Data)
		}
	}
	return out
}

type notices struct {
	got []OfflineNotice
}

func (n *notices) NotifyOffline(notice OfflineNotice) {
	n.got = append(n.got, notice)
}

// join connects conn and enters room as user.
func join(t *testing.T, c *Coordinator, conn ConnID, room, user string) {
	t.Helper()
	if _, ok := c.conns[conn]; !ok {
		c.Connect(conn)
	}
	c.JoinRoom(conn, RoomUser{Room: room, User: user})
	if c.conns[conn] != user {
		t.Fatalf("connection %s not bound to %s after join", conn, user)
	}
}
