package chat

// Event names sent to clients.
const (
	EventOnlineUsers    = "onlineUsers"
	EventNewRoomCreated = "newRoomCreated"
	EventJoinRequest    = "joinRequest"
	EventJoinApproved   = "joinApproved"
	EventUserRooms      = "userRooms"
	EventMessage        = "message"
	EventRoomUsers      = "roomUsers"
	EventLoadMessages   = "loadMessages"
	EventUnreadUpdate   = "unreadUpdate"
)

// Event is one outbound server→client notification.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// UserRoomsPayload is the body of a userRooms event.
type UserRoomsPayload struct {
	PrivateRooms []Room `json:"privateRooms"`
}
