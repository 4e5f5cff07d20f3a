package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T) (*Coordinator, *recorder, *notices) {
	t.Helper()
	rec := &recorder{}
	n := &notices{}
	return NewCoordinator(rec, WithNotifier(n)), rec, n
}

func TestConnectBroadcastsOnlineSnapshot(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	rec.reset()

	c.Connect("c2")

	got := rec.named("c2", EventOnlineUsers)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"alice"}, got[0])
	assert.Len(t, rec.named("c1", EventOnlineUsers), 1)
}

func TestJoinRoomEventSequence(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "sports", "alice")
	c.ChatMessage("c1", ChatMessageRequest{Room: "sports", Message: "alice: hi"})
	c.Connect("c2")
	rec.reset()

	c.JoinRoom("c2", RoomUser{Room: "sports", User: "bob"})

	names := func(evs []Event) []string {
		var out []string
		for _, ev := range evs {
			out = append(out, ev.Name)
		}
		return out
	}
	assert.Equal(t,
		[]string{EventOnlineUsers, EventRoomUsers, EventLoadMessages, EventUnreadUpdate},
		names(rec.to("c2")))
	assert.Equal(t,
		[]string{EventOnlineUsers, EventMessage, EventRoomUsers},
		names(rec.to("c1")))

	assert.Equal(t, []any{"System: bob joined the room"}, rec.named("c1", EventMessage))
	assert.Equal(t, []any{[]string{"alice: hi"}}, rec.named("c2", EventLoadMessages))
	assert.Equal(t, []any{[]string{"alice", "bob"}}, rec.named("c2", EventOnlineUsers))
	assert.Equal(t,
		[]Participant{{Conn: "c1", User: "alice"}, {Conn: "c2", User: "bob"}},
		rec.named("c2", EventRoomUsers)[0])
}

func TestJoinRoomBindsIdentityOnce(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	rec.reset()

	c.JoinRoom("c1", RoomUser{Room: "sports", User: "mallory"})
	assert.Empty(t, rec.out)
	assert.Equal(t, "alice", c.conns["c1"])
	assert.False(t, c.presence.IsOnline("mallory"))
}

func TestJoinRoomRequiresMembership(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	c.CreateRoom("c1", CreateRoomRequest{Kind: KindGroup, Label: "Book Club"})
	c.Connect("c2")
	rec.reset()

	c.JoinRoom("c2", RoomUser{Room: "book-club", User: "bob"})
	assert.Empty(t, rec.out)
	assert.Equal(t, "", c.conns["c2"])

	c.JoinRoom("c2", RoomUser{Room: "nowhere", User: "bob"})
	assert.Empty(t, rec.out)
}

func TestCreateExistingPublicRoomIsNoop(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	rec.reset()

	c.CreateRoom("c1", CreateRoomRequest{Kind: KindPublic, ID: "sports", Label: "Sports"})
	assert.Empty(t, rec.out)
}

func TestCreatePublicRoomBroadcasts(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	c.Connect("c2")
	rec.reset()

	c.CreateRoom("c1", CreateRoomRequest{Kind: KindPublic, Label: "  Night Owls "})

	for _, conn := range []ConnID{"c1", "c2"} {
		got := rec.named(conn, EventNewRoomCreated)
		require.Len(t, got, 1, "conn %s", conn)
		room := got[0].(Room)
		assert.Equal(t, "night-owls", room.ID)
		assert.Equal(t, "Night Owls", room.Label)
		assert.Equal(t, "alice", room.Owner)
	}
}

func TestCreateGroupRoomTargetsCreator(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "c1", "general", "alice")
	join(t, c, "c2", "general", "bob")
	rec.reset()

	c.CreateRoom("c1", CreateRoomRequest{Kind: KindGroup, Label: "Book Club"})
	require.Len(t, rec.named("c1", EventNewRoomCreated), 1)
	assert.Empty(t, rec.named("c2", EventNewRoomCreated))
}

func TestCreateRoomRequiresBinding(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	c.Connect("c1")
	rec.reset()

	c.CreateRoom("c1", CreateRoomRequest{Kind: KindPublic, Label: "x"})
	assert.Empty(t, rec.out)
	_, ok := c.rooms.Get("x")
	assert.False(t, ok)
}

func TestDirectRoomScenario(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	rec.reset()

	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect, TargetUser: "bob"})

	for _, conn := range []ConnID{"ca", "cb"} {
		got := rec.named(conn, EventNewRoomCreated)
		require.Len(t, got, 1, "conn %s", conn)
		assert.Equal(t, "alice_bob", got[0].(Room).ID)
	}
	rec.reset()

	c.CreateRoom("cb", CreateRoomRequest{Kind: KindDirect, TargetUser: "alice"})
	assert.Empty(t, rec.named("ca", EventNewRoomCreated))
	assert.Empty(t, rec.named("cb", EventNewRoomCreated))
	approved := rec.named("cb", EventJoinApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "alice_bob", approved[0].(Room).ID)
}

func TestDirectRoomRejectsSelfAndEmptyTarget(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	rec.reset()

	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect, TargetUser: "alice"})
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect})
	assert.Empty(t, rec.out)
}

func TestApprovalFlow(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindGroup, Label: "Book Club"})
	rec.reset()

	c.RequestJoin("cb", RoomUser{Room: "book-club", User: "bob"})
	reqs := rec.named("ca", EventJoinRequest)
	require.Len(t, reqs, 1)
	jr := reqs[0].(JoinRequest)
	assert.Equal(t, "bob", jr.User)
	assert.Equal(t, "book-club", jr.Room)

	// Duplicate request is ignored.
	rec.reset()
	c.RequestJoin("cb", RoomUser{Room: "book-club", User: "bob"})
	assert.Empty(t, rec.out)

	// Only the owner may decide.
	c.ApproveJoin("cb", ApproveJoinRequest{RequestID: jr.ID, Approve: true})
	assert.Empty(t, rec.out)

	c.ApproveJoin("ca", ApproveJoinRequest{RequestID: jr.ID, Approve: true})
	approved := rec.named("cb", EventJoinApproved)
	require.Len(t, approved, 1)
	assert.Contains(t, approved[0].(Room).Members, "bob")

	rec.reset()
	c.ApproveJoin("ca", ApproveJoinRequest{RequestID: jr.ID, Approve: true})
	assert.Empty(t, rec.out, "a decided request cannot be decided again")

	// bob can now enter and sees the room in his list.
	c.JoinRoom("cb", RoomUser{Room: "book-club", User: "bob"})
	assert.NotEmpty(t, rec.named("cb", EventLoadMessages))
	c.GetUserRooms("cb")
	rooms := rec.named("cb", EventUserRooms)
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].(UserRoomsPayload).PrivateRooms, 1)
}

func TestRequestJoinShortCircuitAndIdentityCheck(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	rec.reset()

	c.RequestJoin("ca", RoomUser{Room: "music", User: "alice"})
	require.Len(t, rec.named("ca", EventJoinApproved), 1)

	rec.reset()
	c.RequestJoin("ca", RoomUser{Room: "music", User: "bob"})
	assert.Empty(t, rec.out)
}

func TestJoinRequestQueuedWhileOwnerOffline(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindGroup, Label: "Book Club"})
	c.Disconnecting("ca")
	c.Disconnect("ca")
	join(t, c, "cb", "general", "bob")
	rec.reset()

	c.RequestJoin("cb", RoomUser{Room: "book-club", User: "bob"})
	assert.Empty(t, rec.out)
	assert.Len(t, c.approvals.Pending("book-club"), 1)
}

func TestUnreadScenario(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindGroup, Label: "Book Club"})
	c.RequestJoin("cb", RoomUser{Room: "book-club", User: "bob"})
	c.ApproveJoin("ca", ApproveJoinRequest{RequestID: 1, Approve: true})
	c.JoinRoom("ca", RoomUser{Room: "book-club", User: "alice"})
	rec.reset()

	c.ChatMessage("ca", ChatMessageRequest{Room: "book-club", Message: "alice: hi"})

	assert.Equal(t, []any{"alice: hi"}, rec.named("ca", EventMessage))
	assert.Empty(t, rec.named("cb", EventMessage), "bob is not viewing the room")
	assert.Equal(t, 1, c.unread.Count("bob", "book-club"))
	assert.Equal(t, []any{map[string]int{"general": 0, "book-club": 1}}, rec.named("cb", EventUnreadUpdate))
	assert.Empty(t, rec.named("ca", EventUnreadUpdate))

	c.ChatMessage("ca", ChatMessageRequest{Room: "book-club", Message: "alice: there?"})
	assert.Equal(t, 2, c.unread.Count("bob", "book-club"))

	rec.reset()
	c.JoinRoom("cb", RoomUser{Room: "book-club", User: "bob"})
	assert.Equal(t, 0, c.unread.Count("bob", "book-club"))
	assert.Equal(t, []any{[]string{"alice: hi", "alice: there?"}}, rec.named("cb", EventLoadMessages))

	rec.reset()
	c.ChatMessage("ca", ChatMessageRequest{Room: "book-club", Message: "alice: welcome"})
	assert.Equal(t, 0, c.unread.Count("bob", "book-club"), "present members do not accrue unread")
	assert.Equal(t, []any{"alice: welcome"}, rec.named("cb", EventMessage))
}

func TestSenderUnreadResetsOnSend(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect, TargetUser: "bob"})
	c.JoinRoom("ca", RoomUser{Room: "alice_bob", User: "alice"})
	c.ChatMessage("ca", ChatMessageRequest{Room: "alice_bob", Message: "alice: ping"})
	require.Equal(t, 1, c.unread.Count("bob", "alice_bob"))
	rec.reset()

	// bob answers without entering the room view.
	c.ChatMessage("cb", ChatMessageRequest{Room: "alice_bob", Message: "bob: pong"})
	assert.Equal(t, 0, c.unread.Count("bob", "alice_bob"))
	assert.Equal(t, []any{map[string]int{"general": 0, "alice_bob": 0}}, rec.named("cb", EventUnreadUpdate))
	assert.Equal(t, 0, c.unread.Count("alice", "alice_bob"), "alice is present")
}

func TestChatMessageDrops(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	c.Connect("anon")
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindGroup, Label: "Secret"})
	rec.reset()

	c.ChatMessage("anon", ChatMessageRequest{Room: "general", Message: "hi"})
	c.ChatMessage("ca", ChatMessageRequest{Room: "general", Message: ""})
	c.ChatMessage("ca", ChatMessageRequest{Room: "missing", Message: "hi"})
	c.ChatMessage("cb", ChatMessageRequest{Room: "secret", Message: "let me in"})

	assert.Empty(t, rec.out)
	assert.Empty(t, c.messages.History("general"))
	assert.Empty(t, c.messages.History("secret"))
}

func TestChatMessageOrderingPerRoom(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	rec.reset()

	for _, m := range []string{"1", "2", "3"} {
		c.ChatMessage("ca", ChatMessageRequest{Room: "general", Message: m})
	}
	assert.Equal(t, []any{"1", "2", "3"}, rec.named("cb", EventMessage))
	assert.Equal(t, []string{"1", "2", "3"}, c.messages.History("general"))
}

func TestOfflineMemberGetsPushNotice(t *testing.T) {
	c, _, n := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.SubscribePush("cb", Subscription{Endpoint: "https://push.example/bob"})
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect, TargetUser: "bob"})
	c.Disconnecting("cb")
	c.Disconnect("cb")

	c.ChatMessage("ca", ChatMessageRequest{Room: "alice_bob", Message: "alice: are you there?"})

	require.Len(t, n.got, 1)
	assert.Equal(t, OfflineNotice{
		User:         "bob",
		RoomID:       "alice_bob",
		RoomLabel:    "alice and bob",
		Message:      "alice: are you there?",
		Subscription: Subscription{Endpoint: "https://push.example/bob"},
	}, n.got[0])
	assert.Equal(t, 1, c.unread.Count("bob", "alice_bob"))

	c.ExpireSubscription("bob", "https://push.example/bob")
	c.ChatMessage("ca", ChatMessageRequest{Room: "alice_bob", Message: "alice: hello?"})
	assert.Len(t, n.got, 1, "expired subscriptions are skipped")
}

func TestOnlineMemberGetsNoPush(t *testing.T) {
	c, _, n := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	c.SubscribePush("cb", Subscription{Endpoint: "https://push.example/bob"})
	c.CreateRoom("ca", CreateRoomRequest{Kind: KindDirect, TargetUser: "bob"})

	c.ChatMessage("ca", ChatMessageRequest{Room: "alice_bob", Message: "hi"})
	assert.Empty(t, n.got)
}

func TestSubscribePushRequiresBinding(t *testing.T) {
	c, _, _ := newCoordinator(t)
	c.Connect("c1")
	c.SubscribePush("c1", Subscription{Endpoint: "https://push.example/x"})
	assert.Empty(t, c.presence.subs)

	join(t, c, "c1", "general", "alice")
	c.SubscribePush("c1", Subscription{})
	assert.Empty(t, c.presence.subs)
}

func TestDisconnectCleansChannelsAndPresence(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	rec.reset()

	c.Disconnecting("cb")
	c.Disconnect("cb")

	users := rec.named("ca", EventRoomUsers)
	require.Len(t, users, 1)
	assert.Equal(t, []Participant{{Conn: "ca", User: "alice"}}, users[0])

	online := rec.named("ca", EventOnlineUsers)
	require.Len(t, online, 1)
	assert.Equal(t, []string{"alice"}, online[0])
	assert.Empty(t, rec.to("cb"))
}

func TestTakeoverSurvivesOldConnectionClose(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "phone", "general", "alice")
	join(t, c, "laptop", "general", "alice")
	rec.reset()

	c.Disconnecting("phone")
	c.Disconnect("phone")

	assert.True(t, c.presence.IsOnline("alice"))
	conn, _ := c.presence.ConnectionOf("alice")
	assert.Equal(t, ConnID("laptop"), conn)
	assert.Empty(t, rec.named("laptop", EventOnlineUsers), "presence did not change")
}

func TestLeaveRoom(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	join(t, c, "ca", "general", "alice")
	join(t, c, "cb", "general", "bob")
	rec.reset()

	c.LeaveRoom("cb", RoomUser{Room: "general", User: "alice"})
	assert.Empty(t, rec.out, "cannot leave on behalf of someone else")

	c.LeaveRoom("cb", RoomUser{Room: "general", User: "bob"})
	users := rec.named("ca", EventRoomUsers)
	require.Len(t, users, 1)
	assert.Equal(t, []Participant{{Conn: "ca", User: "alice"}}, users[0])
	assert.False(t, c.messages.IsPresent("general", "bob"))
}

func TestHandleDecodesCommands(t *testing.T) {
	c, rec, _ := newCoordinator(t)
	c.Connect("c1")
	rec.reset()

	require.NoError(t, c.Handle("c1", CommandJoinRoom, json.RawMessage(`["general","alice"]`)))
	assert.Equal(t, "alice", c.conns["c1"])

	require.NoError(t, c.Handle("c1", CommandCreateRoom, json.RawMessage(`{"type":"dm","targetUser":"bob"}`)))
	_, ok := c.rooms.Get("alice_bob")
	assert.True(t, ok)

	require.NoError(t, c.Handle("c1", CommandChatMessage, json.RawMessage(`{"room":"general","message":"hey"}`)))
	assert.Equal(t, []string{"hey"}, c.messages.History("general"))

	require.NoError(t, c.Handle("c1", CommandLeaveRoom, json.RawMessage(`{"room":"general","user":"alice"}`)))
	assert.False(t, c.messages.IsPresent("general", "alice"))

	require.NoError(t, c.Handle("c1", CommandGetUserRooms, nil))
	assert.Len(t, rec.named("c1", EventUserRooms), 1)
}

func TestHandleErrors(t *testing.T) {
	c, _, _ := newCoordinator(t)
	c.Connect("c1")

	err := c.Handle("c1", "launchMissiles", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.Error(t, c.Handle("c1", CommandJoinRoom, json.RawMessage(`["only-room"]`)))
	assert.Error(t, c.Handle("c1", CommandChatMessage, json.RawMessage(`{"room":`)))
	assert.Error(t, c.Handle("c1", CommandApproveJoin, nil))
}
