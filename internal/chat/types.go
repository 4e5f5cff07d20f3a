// Package chat defines the room, presence and message types shared by the
// coordinator and its components.
package chat

import (
	"encoding/json"
	"strings"
)

// ConnID identifies one live transport connection.
type ConnID string

// Kind is the room type. It is encoded on the wire as "type".
type Kind string

// Room kinds.
const (
	KindPublic Kind = "public"
	KindGroup  Kind = "group"
	KindDirect Kind = "direct"
)

// ParseKind maps a client-supplied room type to a Kind. "dm" is accepted as
// an alias of direct.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return KindPublic, true
	case "group":
		return KindGroup, true
	case "direct", "dm":
		return KindDirect, true
	default:
		return "", false
	}
}

// UnmarshalJSON accepts any spelling ParseKind understands.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseKind(s)
	if !ok {
		*k = Kind(s)
		return nil
	}
	*k = parsed
	return nil
}

// JoinRequest is a pending request to enter a group room.
type JoinRequest struct {
	ID   int64  `json:"id"`
	Room string `json:"room"`
	User string `json:"user"`
}

// Room is a named conversation scope.
type Room struct {
	ID              string        `json:"id"`
	Label           string        `json:"label"`
	Kind            Kind          `json:"type"`
	Owner           string        `json:"owner"`
	Members         []string      `json:"members"`
	PendingRequests []JoinRequest `json:"pendingRequests"`
}

// HasMember reports whether user is an explicit member of the room.
func (r *Room) HasMember(user string) bool {
	for _, m := range r.Members {
		if m == user {
			return true
		}
	}
	return false
}

// clone returns a deep copy so events never alias directory state.
func (r *Room) clone() Room {
	out := *r
	out.Members = append([]string{}, r.Members...)
	out.PendingRequests = append([]JoinRequest{}, r.PendingRequests...)
	return out
}

// Subscription is a browser PushSubscription as serialised by toJSON().
type Subscription struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime *int64           `json:"expirationTime,omitempty"`
	Keys           SubscriptionKeys `json:"keys"`
}

// SubscriptionKeys holds the client's encryption material.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Participant is one connection currently viewing a room.
type Participant struct {
	Conn ConnID `json:"id"`
	User string `json:"name"`
}

// OfflineNotice asks the notification dispatcher to reach a member who has no
// live connection.
type OfflineNotice struct {
	User         string
	RoomID       string
	RoomLabel    string
	Message      string
	Subscription Subscription
}

// Transport delivers events to a single connection.
type Transport interface {
	Deliver(conn ConnID, ev Event)
}

// Notifier accepts offline notices. Implementations must not block.
type Notifier interface {
	NotifyOffline(n OfflineNotice)
}
