package chat

import "sort"

// MessageLog keeps each room's append-only history and the set of connections
// currently joined to the room's channel. Channel presence is independent of
// room membership.
type MessageLog struct {
	history  map[string][]string
	channels map[string][]Participant
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		history:  make(map[string][]string),
		channels: make(map[string][]Participant),
	}
}

// Append records msg at the end of room's history.
func (l *MessageLog) Append(room, msg string) {
	l.history[room] = append(l.history[room], msg)
}

// History returns a copy of room's messages in arrival order.
func (l *MessageLog) History(room string) []string {
	return append([]string{}, l.history[room]...)
}

// Enter adds conn to room's channel. It reports false if conn was already there.
func (l *MessageLog) Enter(room string, conn ConnID, user string) bool {
	for _, p := range l.channels[room] {
		if p.Conn == conn {
			return false
		}
	}
	l.channels[room] = append(l.channels[room], Participant{Conn: conn, User: user})
	return true
}

// Leave removes conn from room's channel. It reports whether conn was there.
func (l *MessageLog) Leave(room string, conn ConnID) bool {
	ps := l.channels[room]
	for i, p := range ps {
		if p.Conn != conn {
			continue
		}
		l.channels[room] = append(ps[:i:i], ps[i+1:]...)
		return true
	}
	return false
}

// LeaveAll removes conn from every channel and returns the rooms it left.
func (l *MessageLog) LeaveAll(conn ConnID) []string {
	var left []string
	for room := range l.channels {
		if l.Leave(room, conn) {
			left = append(left, room)
		}
	}
	sort.Strings(left)
	return left
}

// Participants returns the connections in room's channel, in join order.
func (l *MessageLog) Participants(room string) []Participant {
	return append([]Participant{}, l.channels[room]...)
}

// IsPresent reports whether any connection bound to user is in room's channel.
func (l *MessageLog) IsPresent(room, user string) bool {
	for _, p := range l.channels[room] {
		if p.User == user {
			return true
		}
	}
	return false
}
