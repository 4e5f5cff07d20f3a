package chat

// Unread tracks per-user, per-room unread message counts.
type Unread struct {
	counts map[string]map[string]int
}

// NewUnread returns an empty counter set.
func NewUnread() *Unread {
	return &Unread{counts: make(map[string]map[string]int)}
}

// Increment bumps user's count for room and returns the new value.
func (u *Unread) Increment(user, room string) int {
	byRoom, ok := u.counts[user]
	if !ok {
		byRoom = make(map[string]int)
		u.counts[user] = byRoom
	}
	byRoom[room]++
	return byRoom[room]
}

// Reset zeroes user's count for room. It reports whether the count changed.
func (u *Unread) Reset(user, room string) bool {
	byRoom, ok := u.counts[user]
	if !ok {
		u.counts[user] = map[string]int{room: 0}
		return false
	}
	prev := byRoom[room]
	byRoom[room] = 0
	return prev != 0
}

// Count returns user's count for room.
func (u *Unread) Count(user, room string) int {
	return u.counts[user][room]
}

// Snapshot returns a copy of every count for user. It is never nil.
func (u *Unread) Snapshot(user string) map[string]int {
	out := make(map[string]int, len(u.counts[user]))
	for room, n := range u.counts[user] {
		out[room] = n
	}
	return out
}
