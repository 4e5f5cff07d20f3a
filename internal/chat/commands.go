package chat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Command names accepted from clients.
const (
	CommandSubscribePush = "subscribePush"
	CommandCreateRoom    = "createRoom"
	CommandRequestJoin   = "requestJoin"
	CommandApproveJoin   = "approveJoin"
	CommandGetUserRooms  = "getUserRooms"
	CommandJoinRoom      = "joinRoom"
	CommandLeaveRoom     = "leaveRoom"
	CommandChatMessage   = "chatMessage"
)

// ErrUnknownCommand is returned by Handle for names it does not recognise.
var ErrUnknownCommand = errors.New("unknown command")

// CreateRoomRequest is the createRoom payload. TargetUser is required, and
// ID and Label are ignored, when Kind is direct.
type CreateRoomRequest struct {
	Kind       Kind   `json:"type"`
	Label      string `json:"label,omitempty"`
	ID         string `json:"id,omitempty"`
	TargetUser string `json:"targetUser,omitempty"`
}

// RoomUser names a room and the identity acting on it. It decodes from
// either {"room": ..., "user": ...} or a two-element array.
type RoomUser struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// UnmarshalJSON accepts the object form and the positional array form.
func (r *RoomUser) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var args []string
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return err
		}
		if len(args) != 2 {
			return fmt.Errorf("expected [room, user], got %d arguments", len(args))
		}
		r.Room, r.User = args[0], args[1]
		return nil
	}

	type plain RoomUser
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RoomUser(p)
	return nil
}

// ApproveJoinRequest is the approveJoin payload.
type ApproveJoinRequest struct {
	RequestID int64 `json:"requestId"`
	Approve   bool  `json:"approve"`
}

// ChatMessageRequest is the chatMessage payload.
type ChatMessageRequest struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Handle decodes a named command and applies it. Decode failures and unknown
// names are returned for logging; clients never see them.
func (c *Coordinator) Handle(conn ConnID, name string, data json.RawMessage) error {
	switch name {
	case CommandSubscribePush:
		var sub Subscription
		if err := decode(name, data, &sub); err != nil {
			return err
		}
		c.SubscribePush(conn, sub)
	case CommandCreateRoom:
		var req CreateRoomRequest
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.CreateRoom(conn, req)
	case CommandRequestJoin:
		var req RoomUser
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.RequestJoin(conn, req)
	case CommandApproveJoin:
		var req ApproveJoinRequest
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.ApproveJoin(conn, req)
	case CommandGetUserRooms:
		c.GetUserRooms(conn)
	case CommandJoinRoom:
		var req RoomUser
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.JoinRoom(conn, req)
	case CommandLeaveRoom:
		var req RoomUser
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.LeaveRoom(conn, req)
	case CommandChatMessage:
		var req ChatMessageRequest
		if err := decode(name, data, &req); err != nil {
			return err
		}
		c.ChatMessage(conn, req)
	default:
		return errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
	return nil
}

func decode(name string, data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.Errorf("decode %s: missing payload", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode %s", name)
	}
	return nil
}
