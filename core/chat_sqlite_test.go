package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner   = User{Username: "owner", Password: "password", Name: "Owner"}
	member1 = User{Username: "member1", Password: "password", Name: "Member 1"}
	member2 = User{Username: "member2", Password: "password", Name: "Member 2"}
)

func TestCreateRoom(t *testing.T) {

	t.Run("create group room", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Name:    "Group chat",
			IsGroup: true,
			Members: []string{member1.Username},
		}, owner.Username)
		require.Nil(t, err)
		require.NotEmpty(t, id)

		room, err := f.chatStore.GetRoomByID(f.ctx, id)
		require.Nil(t, err)
		require.NotNil(t, room)
		assert.Equal(t, id, room.ID)
		assert.Equal(t, "Group chat", room.Name)
		assert.True(t, room.IsGroup)
		assert.Equal(t, owner.Username, room.CreatedBy)
		assert.NotZero(t, room.CreatedAt)
		assert.Equal(t, []string{member1.Username, owner.Username}, room.Members)
	})

	t.Run("creator is always a member", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1, member2)

		// The creator is not listed explicitly.
		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Name:    "Group chat",
			IsGroup: true,
			Members: []string{member1.Username, member2.Username},
		}, owner.Username)
		require.Nil(t, err)

		ok, err := f.chatStore.IsRoomMember(f.ctx, id, owner.Username)
		require.Nil(t, err)
		assert.True(t, ok)
	})

	t.Run("group room without a name", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			IsGroup: true,
			Members: []string{member1.Username},
		}, owner.Username)
		require.ErrorIs(t, err, ErrInvalidInput)
		require.Zero(t, id)
	})

	t.Run("group room with the creator as only member", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Name:    "Group chat",
			IsGroup: true,
			Members: []string{owner.Username},
		}, owner.Username)
		require.ErrorIs(t, err, ErrInvalidInput)
		require.Zero(t, id)
	})

	t.Run("unknown member", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Name:    "Group chat",
			IsGroup: true,
			Members: []string{"random"},
		}, owner.Username)
		require.ErrorIs(t, err, ErrInvalidInput)
		require.Zero(t, id)
	})

	t.Run("create private room", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Members: []string{member1.Username},
		}, owner.Username)
		require.Nil(t, err)
		require.NotEmpty(t, id)

		room, err := f.chatStore.GetRoomByID(f.ctx, id)
		require.Nil(t, err)
		require.NotNil(t, room)
		assert.False(t, room.IsGroup)
		assert.Empty(t, room.Name)
		assert.Equal(t, []string{member1.Username, owner.Username}, room.Members)
	})

	t.Run("private room for an existing pair returns the existing room", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)

		first, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Members: []string{member1.Username},
		}, owner.Username)
		require.Nil(t, err)

		// Same pair, opposite direction.
		second, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Members: []string{owner.Username},
		}, member1.Username)
		require.Nil(t, err)
		assert.Equal(t, first, second)

		rooms, err := f.chatStore.ListRooms(f.ctx, owner.Username, 0, 0)
		require.Nil(t, err)
		assert.Len(t, rooms, 1)
	})

	t.Run("private room with more than two members", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1, member2)

		id, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
			Members: []string{member1.Username, member2.Username},
		}, owner.Username)
		require.ErrorIs(t, err, ErrInvalidInput)
		require.Zero(t, id)
	})
}

func TestGetRoomByID(t *testing.T) {
	t.Run("room exists", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		id := seedGroupRoom(f, owner, "Group chat", member1)

		room, err := f.chatStore.GetRoomByID(f.ctx, id)
		require.Nil(t, err)
		require.NotNil(t, room)
		assert.Equal(t, id, room.ID)
		assert.Equal(t, "Group chat", room.Name)
	})

	t.Run("room does not exist", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		room, err := f.chatStore.GetRoomByID(f.ctx, "random")
		require.Nil(t, err)
		assert.Nil(t, room)
	})
}

func TestListRooms(t *testing.T) {
	t.Run("filter logic", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1, member2)
		room1 := seedGroupRoom(f, owner, "Room1", member1)
		room2 := seedGroupRoom(f, owner, "Room2", member2)

		ownerRooms, err := f.chatStore.ListRooms(f.ctx, owner.Username, 0, 0)
		require.Nil(t, err)
		require.Len(t, ownerRooms, 2)

		member1Rooms, err := f.chatStore.ListRooms(f.ctx, member1.Username, 0, 0)
		require.Nil(t, err)
		require.Len(t, member1Rooms, 1)
		assert.Equal(t, room1, member1Rooms[0].ID)
		assert.Equal(t, []string{member1.Username, owner.Username}, member1Rooms[0].Members)

		member2Rooms, err := f.chatStore.ListRooms(f.ctx, member2.Username, 0, 0)
		require.Nil(t, err)
		require.Len(t, member2Rooms, 1)
		assert.Equal(t, room2, member2Rooms[0].ID)
	})

	t.Run("pagination logic", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room1 := seedGroupRoom(f, owner, "Room1", member1)
		room2 := seedGroupRoom(f, owner, "Room2", member1)

		page1, err := f.chatStore.ListRooms(f.ctx, owner.Username, 0, 1)
		require.Nil(t, err)
		require.Len(t, page1, 1)

		page2, err := f.chatStore.ListRooms(f.ctx, owner.Username, 1, 1)
		require.Nil(t, err)
		require.Len(t, page2, 1)

		// The two pages together cover both rooms exactly once.
		ids := []string{page1[0].ID, page2[0].ID}
		assert.Contains(t, ids, room1)
		assert.Contains(t, ids, room2)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
	})
}

func TestIsRoomMember(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()
	seedUsers(f.ctx, f.t, f.userStore, owner, member1, member2)
	room := seedGroupRoom(f, owner, "Group chat", member1)

	t.Run("user is a member", func(t *testing.T) {
		ok, err := f.chatStore.IsRoomMember(f.ctx, room, member1.Username)
		require.Nil(t, err)
		assert.True(t, ok)
	})

	t.Run("user is not a member", func(t *testing.T) {
		ok, err := f.chatStore.IsRoomMember(f.ctx, room, member2.Username)
		require.Nil(t, err)
		assert.False(t, ok)
	})

	t.Run("room does not exist", func(t *testing.T) {
		ok, err := f.chatStore.IsRoomMember(f.ctx, "random", member1.Username)
		require.Nil(t, err)
		assert.False(t, ok)
	})
}

func TestCreateMessage(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()
	seedUsers(f.ctx, f.t, f.userStore, owner, member1, member2)
	room := seedGroupRoom(f, owner, "Group chat", member1)

	t.Run("non member sends a message", func(t *testing.T) {
		msg, err := f.chatStore.CreateMessage(f.ctx, MessageCreateInput{
			RoomID: room,
			Sender: member2.Username,
			Body:   "hi there",
		})
		require.ErrorIs(t, err, ErrNotAMember)
		require.Nil(t, msg)

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Nil(t, messages)
	})

	t.Run("empty body", func(t *testing.T) {
		msg, err := f.chatStore.CreateMessage(f.ctx, MessageCreateInput{
			RoomID: room,
			Sender: owner.Username,
		})
		require.ErrorIs(t, err, ErrInvalidInput)
		require.Nil(t, msg)
	})

	t.Run("valid message", func(t *testing.T) {
		msg, err := f.chatStore.CreateMessage(f.ctx, MessageCreateInput{
			RoomID:     room,
			Sender:     owner.Username,
			SenderName: owner.Name,
			Body:       "hi there",
		})
		require.Nil(t, err)
		require.NotNil(t, msg)
		assert.NotZero(t, msg.ID)
		assert.Equal(t, room, msg.RoomID)
		assert.Equal(t, owner.Username, msg.Sender)
		assert.Equal(t, owner.Name, msg.SenderName)
		assert.Equal(t, "hi there", msg.Body)
		assert.NotZero(t, msg.SentAt)
	})

	t.Run("ids follow insertion order", func(t *testing.T) {
		m1 := seedMessage(f, room, owner, "first")
		m2 := seedMessage(f, room, member1, "second")
		m3 := seedMessage(f, room, owner, "third")
		assert.Less(t, m1.ID, m2.ID)
		assert.Less(t, m2.ID, m3.ID)
	})
}

func TestGetMessageByID(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()
	seedUsers(f.ctx, f.t, f.userStore, owner, member1)
	room := seedGroupRoom(f, owner, "Group chat", member1)
	seeded := seedMessage(f, room, owner, "hello")

	t.Run("existing message", func(t *testing.T) {
		msg, err := f.chatStore.GetMessageByID(f.ctx, seeded.ID)
		require.Nil(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, seeded.ID, msg.ID)
		assert.Equal(t, room, msg.RoomID)
		assert.Equal(t, owner.Username, msg.Sender)
		assert.Equal(t, "hello", msg.Body)
	})

	t.Run("missing message", func(t *testing.T) {
		msg, err := f.chatStore.GetMessageByID(f.ctx, seeded.ID+100)
		require.Nil(t, err)
		assert.Nil(t, msg)
	})
}

func TestListMessages(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()
	seedUsers(f.ctx, f.t, f.userStore, owner, member1)
	room := seedGroupRoom(f, owner, "Group chat", member1)

	t.Run("empty room", func(t *testing.T) {
		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Nil(t, messages)
	})

	t.Run("messages come back in insertion order", func(t *testing.T) {
		expected := []Message{
			*seedMessage(f, room, owner, "one"),
			*seedMessage(f, room, member1, "two"),
			*seedMessage(f, room, owner, "three"),
			*seedMessage(f, room, member1, "four"),
		}

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Len(t, messages, len(expected))
		for i := range expected {
			assert.Equal(t, expected[i].ID, messages[i].ID)
			assert.Equal(t, expected[i].Body, messages[i].Body)
			assert.Equal(t, expected[i].Sender, messages[i].Sender)
		}

		page1, err := f.chatStore.ListMessages(f.ctx, room, 0, 2)
		require.Nil(t, err)
		require.Len(t, page1, 2)
		assert.Equal(t, expected[0].ID, page1[0].ID)
		assert.Equal(t, expected[1].ID, page1[1].ID)

		page2, err := f.chatStore.ListMessages(f.ctx, room, 2, 2)
		require.Nil(t, err)
		require.Len(t, page2, 2)
		assert.Equal(t, expected[2].ID, page2[0].ID)
		assert.Equal(t, expected[3].ID, page2[1].ID)
	})
}

func TestEditMessage(t *testing.T) {

	t.Run("edit inside the trailing run", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		seedMessage(f, room, member1, "hello")
		m2 := seedMessage(f, room, owner, "typo one")
		seedMessage(f, room, owner, "and more")

		edited, err := f.chatStore.EditMessage(f.ctx, m2.ID, owner.Username, "fixed")
		require.Nil(t, err)
		require.NotNil(t, edited)
		assert.Equal(t, m2.ID, edited.ID)
		assert.Equal(t, "fixed", edited.Body)

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "fixed", messages[1].Body)
	})

	t.Run("another participant posted after the target", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		m1 := seedMessage(f, room, owner, "original")
		seedMessage(f, room, member1, "reply")

		edited, err := f.chatStore.EditMessage(f.ctx, m1.ID, owner.Username, "rewritten")
		require.ErrorIs(t, err, ErrForbidden)
		require.Nil(t, edited)

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		assert.Equal(t, "original", messages[0].Body)
	})

	t.Run("interleaved senders", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		seedMessage(f, room, owner, "a1")
		a2 := seedMessage(f, room, owner, "a2")
		b3 := seedMessage(f, room, member1, "b3")

		_, err := f.chatStore.EditMessage(f.ctx, a2.ID, owner.Username, "nope")
		require.ErrorIs(t, err, ErrForbidden)

		edited, err := f.chatStore.EditMessage(f.ctx, b3.ID, member1.Username, "still mine")
		require.Nil(t, err)
		assert.Equal(t, "still mine", edited.Body)
	})

	t.Run("edit another user's message", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		m := seedMessage(f, room, owner, "mine")

		_, err := f.chatStore.EditMessage(f.ctx, m.ID, member1.Username, "stolen")
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("message does not exist", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		_, err := f.chatStore.EditMessage(f.ctx, 12345, owner.Username, "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty body", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		m := seedMessage(f, room, owner, "something")

		_, err := f.chatStore.EditMessage(f.ctx, m.ID, owner.Username, "")
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestDeleteMessage(t *testing.T) {

	t.Run("delete inside the trailing run", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		seedMessage(f, room, member1, "hello")
		m2 := seedMessage(f, room, owner, "oops")
		m3 := seedMessage(f, room, owner, "tail")

		deleted, err := f.chatStore.DeleteMessage(f.ctx, m2.ID, owner.Username)
		require.Nil(t, err)
		require.NotNil(t, deleted)
		assert.Equal(t, m2.ID, deleted.ID)
		assert.Equal(t, "oops", deleted.Body)

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "hello", messages[0].Body)
		assert.Equal(t, m3.ID, messages[1].ID)
	})

	t.Run("another participant posted after the target", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		m1 := seedMessage(f, room, owner, "keep me")
		seedMessage(f, room, member1, "reply")

		_, err := f.chatStore.DeleteMessage(f.ctx, m1.ID, owner.Username)
		require.ErrorIs(t, err, ErrForbidden)

		messages, err := f.chatStore.ListMessages(f.ctx, room, 0, 0)
		require.Nil(t, err)
		require.Len(t, messages, 2)
	})

	t.Run("deleting the tail reopens the previous run", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, f.t, f.userStore, owner, member1)
		room := seedGroupRoom(f, owner, "Group chat", member1)
		m1 := seedMessage(f, room, owner, "first")
		m2 := seedMessage(f, room, member1, "second")

		// m1 is locked by m2.
		_, err := f.chatStore.EditMessage(f.ctx, m1.ID, owner.Username, "nope")
		require.ErrorIs(t, err, ErrForbidden)

		// member1 removes their own tail; owner's run is trailing again.
		_, err = f.chatStore.DeleteMessage(f.ctx, m2.ID, member1.Username)
		require.Nil(t, err)

		edited, err := f.chatStore.EditMessage(f.ctx, m1.ID, owner.Username, "reopened")
		require.Nil(t, err)
		assert.Equal(t, "reopened", edited.Body)
	})

	t.Run("message does not exist", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		_, err := f.chatStore.DeleteMessage(f.ctx, 12345, owner.Username)
		require.ErrorIs(t, err, ErrNotFound)
	})
}
