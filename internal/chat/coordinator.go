package chat

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// systemNoticeFormat is the text announced to a channel when someone enters.
const systemNoticeFormat = "System: %s joined the room"

// Coordinator owns all chat state and applies one command at a time. It holds
// no locks: callers must invoke it from a single goroutine.
type Coordinator struct {
	transport Transport
	notifier  Notifier
	log       *zap.Logger

	conns     map[ConnID]string // connection -> bound identity ("" until first join)
	presence  *Presence
	rooms     *Directory
	approvals *Approvals
	messages  *MessageLog
	unread    *Unread
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for dropped commands and lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithNotifier sets the offline notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithRooms replaces the default seed rooms.
func WithRooms(seed ...Room) Option {
	return func(c *Coordinator) {
		c.rooms = NewDirectory(seed...)
		c.approvals = NewApprovals(c.rooms)
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyOffline(OfflineNotice) {}

// NewCoordinator returns a coordinator that emits events through t.
func NewCoordinator(t Transport, opts ...Option) *Coordinator {
	rooms := NewDirectory(DefaultRooms()...)
	c := &Coordinator{
		transport: t,
		notifier:  nopNotifier{},
		log:       zap.NewNop(),
		conns:     make(map[ConnID]string),
		presence:  NewPresence(),
		rooms:     rooms,
		approvals: NewApprovals(rooms),
		messages:  NewMessageLog(),
		unread:    NewUnread(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect registers a new, still anonymous connection.
func (c *Coordinator) Connect(conn ConnID) {
	c.conns[conn] = ""
	c.log.Info("connection opened", zap.String("conn", string(conn)), zap.Int("connections", len(c.conns)))
	c.broadcastOnline()
}

// Disconnecting removes conn from every room channel it had entered.
func (c *Coordinator) Disconnecting(conn ConnID) {
	for _, room := range c.messages.LeaveAll(conn) {
		c.emitRoomUsers(room)
	}
}

// Disconnect forgets conn and, if it still carries its identity's presence,
// unregisters that identity.
func (c *Coordinator) Disconnect(conn ConnID) {
	user, ok := c.conns[conn]
	if !ok {
		return
	}
	delete(c.conns, conn)
	c.log.Info("connection closed",
		zap.String("conn", string(conn)),
		zap.String("user", user),
		zap.Int("connections", len(c.conns)))

	if user == "" {
		return
	}
	if current, ok := c.presence.ConnectionOf(user); ok && current == conn {
		c.presence.Unregister(user)
		c.broadcastOnline()
	}
}

// SubscribePush stores a push subscription for the connection's identity.
func (c *Coordinator) SubscribePush(conn ConnID, sub Subscription) {
	user := c.conns[conn]
	if user == "" {
		c.drop(conn, "subscribePush", "connection not bound")
		return
	}
	if sub.Endpoint == "" {
		c.drop(conn, "subscribePush", "empty endpoint")
		return
	}
	if !c.presence.RecordSubscription(user, sub) {
		c.drop(conn, "subscribePush", "user not registered")
		return
	}
	c.log.Info("push subscription saved", zap.String("user", user))
}

// ExpireSubscription clears a subscription the push service reported gone.
func (c *Coordinator) ExpireSubscription(user, endpoint string) {
	if c.presence.ClearSubscription(user, endpoint) {
		c.log.Info("push subscription removed", zap.String("user", user))
	}
}

// CreateRoom creates a public, group or direct room.
func (c *Coordinator) CreateRoom(conn ConnID, req CreateRoomRequest) {
	user := c.conns[conn]
	if user == "" {
		c.drop(conn, "createRoom", "connection not bound")
		return
	}

	kind, ok := ParseKind(string(req.Kind))
	if !ok {
		c.drop(conn, "createRoom", "unknown room type")
		return
	}

	if kind == KindDirect {
		c.createDirect(conn, user, strings.TrimSpace(req.TargetUser))
		return
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = "Unnamed"
	}
	source := req.ID
	if strings.TrimSpace(source) == "" {
		source = req.Label
	}

	room, created := c.rooms.CreatePublicOrGroup(NormalizeID(source), label, kind, user)
	if !created {
		c.drop(conn, "createRoom", "room id already exists")
		return
	}
	c.log.Info("room created",
		zap.String("room", room.ID),
		zap.String("type", string(room.Kind)),
		zap.String("owner", user))

	if kind == KindPublic {
		c.broadcast(EventNewRoomCreated, room)
		return
	}
	c.emit(conn, EventNewRoomCreated, room)
}

func (c *Coordinator) createDirect(conn ConnID, user, target string) {
	if target == "" || target == user {
		c.drop(conn, "createRoom", "invalid direct target")
		return
	}

	room, created := c.rooms.CreateDirect(user, target)
	if !created {
		// Existing pair: hand the room back without a second creation event.
		c.emit(conn, EventJoinApproved, room)
		return
	}
	c.log.Info("direct room created", zap.String("room", room.ID))

	c.emit(conn, EventNewRoomCreated, room)
	if targetConn, ok := c.presence.ConnectionOf(target); ok && targetConn != conn {
		c.emit(targetConn, EventNewRoomCreated, room)
	}
}

// RequestJoin asks to enter a room on behalf of the connection's identity.
func (c *Coordinator) RequestJoin(conn ConnID, req RoomUser) {
	user := c.conns[conn]
	if user == "" || user != req.User {
		c.drop(conn, "requestJoin", "identity mismatch")
		return
	}

	outcome, jr := c.approvals.RequestJoin(req.Room, user)
	switch outcome {
	case JoinApproved:
		room, _ := c.rooms.Get(req.Room)
		c.emit(conn, EventJoinApproved, room)
	case JoinQueued:
		room, _ := c.rooms.Get(req.Room)
		c.log.Info("join request queued",
			zap.Int64("request", jr.ID),
			zap.String("room", jr.Room),
			zap.String("user", jr.User))
		if ownerConn, ok := c.presence.ConnectionOf(room.Owner); ok {
			c.emit(ownerConn, EventJoinRequest, jr)
		}
	default:
		c.drop(conn, "requestJoin", "ignored")
	}
}

// ApproveJoin resolves a pending join request owned by the connection's identity.
func (c *Coordinator) ApproveJoin(conn ConnID, req ApproveJoinRequest) {
	user := c.conns[conn]
	if user == "" {
		c.drop(conn, "approveJoin", "connection not bound")
		return
	}

	d, ok := c.approvals.Decide(req.RequestID, req.Approve, user)
	if !ok {
		c.drop(conn, "approveJoin", "unknown request")
		return
	}
	c.log.Info("join request decided",
		zap.Int64("request", d.Request.ID),
		zap.String("room", d.Request.Room),
		zap.Bool("approved", d.Approved))

	if !d.Approved {
		return
	}
	if requester, ok := c.presence.ConnectionOf(d.Request.User); ok {
		c.emit(requester, EventJoinApproved, d.Room)
	}
}

// GetUserRooms sends the group rooms the connection's identity belongs to.
func (c *Coordinator) GetUserRooms(conn ConnID) {
	user := c.conns[conn]
	if user == "" {
		c.drop(conn, "getUserRooms", "connection not bound")
		return
	}
	c.emit(conn, EventUserRooms, UserRoomsPayload{PrivateRooms: c.rooms.GroupRoomsFor(user)})
}

// JoinRoom enters a room's channel, binding the connection's identity on
// first use.
func (c *Coordinator) JoinRoom(conn ConnID, req RoomUser) {
	bound, known := c.conns[conn]
	if !known {
		c.drop(conn, "joinRoom", "unknown connection")
		return
	}
	if req.User == "" || (bound != "" && bound != req.User) {
		c.drop(conn, "joinRoom", "identity mismatch")
		return
	}

	room, ok := c.rooms.Get(req.Room)
	if !ok {
		c.drop(conn, "joinRoom", "unknown room")
		return
	}
	if room.Kind != KindPublic && !room.HasMember(req.User) {
		c.drop(conn, "joinRoom", "not a member")
		return
	}

	user := req.User
	if bound == "" {
		c.conns[conn] = user
	}
	c.presence.Register(user, conn)
	c.broadcastOnline()

	c.messages.Enter(room.ID, conn, user)
	c.toChannel(room.ID, conn, EventMessage, fmt.Sprintf(systemNoticeFormat, user))
	c.emitRoomUsers(room.ID)

	c.unread.Reset(user, room.ID)
	c.emit(conn, EventLoadMessages, c.messages.History(room.ID))
	c.emit(conn, EventUnreadUpdate, c.unread.Snapshot(user))
}

// LeaveRoom removes the connection from a room's channel.
func (c *Coordinator) LeaveRoom(conn ConnID, req RoomUser) {
	if user := c.conns[conn]; user == "" || user != req.User {
		c.drop(conn, "leaveRoom", "identity mismatch")
		return
	}
	if c.messages.Leave(req.Room, conn) {
		c.emitRoomUsers(req.Room)
	}
}

// ChatMessage appends a message to a room and fans it out.
func (c *Coordinator) ChatMessage(conn ConnID, req ChatMessageRequest) {
	sender := c.conns[conn]
	if sender == "" {
		c.drop(conn, "chatMessage", "connection not bound")
		return
	}
	room, ok := c.rooms.Get(req.Room)
	if !ok {
		c.drop(conn, "chatMessage", "unknown room")
		return
	}
	if req.Message == "" {
		c.drop(conn, "chatMessage", "empty message")
		return
	}
	if room.Kind != KindPublic && !room.HasMember(sender) {
		c.drop(conn, "chatMessage", "not a member")
		return
	}

	c.messages.Append(room.ID, req.Message)
	c.toChannel(room.ID, "", EventMessage, req.Message)

	if c.unread.Reset(sender, room.ID) {
		c.emit(conn, EventUnreadUpdate, c.unread.Snapshot(sender))
	}

	for _, member := range room.Members {
		if member == sender || c.messages.IsPresent(room.ID, member) {
			continue
		}
		c.unread.Increment(member, room.ID)

		if memberConn, online := c.presence.ConnectionOf(member); online {
			c.emit(memberConn, EventUnreadUpdate, c.unread.Snapshot(member))
			continue
		}
		sub, ok := c.presence.SubscriptionOf(member)
		if !ok {
			continue
		}
		c.notifier.NotifyOffline(OfflineNotice{
			User:         member,
			RoomID:       room.ID,
			RoomLabel:    room.Label,
			Message:      req.Message,
			Subscription: sub,
		})
	}
}

func (c *Coordinator) emit(conn ConnID, name string, data any) {
	c.transport.Deliver(conn, Event{Name: name, Data: data})
}

func (c *Coordinator) broadcast(name string, data any) {
	for conn := range c.conns {
		c.emit(conn, name, data)
	}
}

// toChannel emits to every connection in room's channel except skip.
func (c *Coordinator) toChannel(room string, skip ConnID, name string, data any) {
	for _, p := range c.messages.Participants(room) {
		if p.Conn == skip {
			continue
		}
		c.emit(p.Conn, name, data)
	}
}

func (c *Coordinator) broadcastOnline() {
	c.broadcast(EventOnlineUsers, c.presence.Online())
}

func (c *Coordinator) emitRoomUsers(room string) {
	c.toChannel(room, "", EventRoomUsers, c.messages.Participants(room))
}

func (c *Coordinator) drop(conn ConnID, command, reason string) {
	c.log.Debug("command dropped",
		zap.String("conn", string(conn)),
		zap.String("command", command),
		zap.String("reason", reason))
}
