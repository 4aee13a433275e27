package core

import (
	"context"
	"encoding/json"
	"testing"
)

func seedUsers(ctx context.Context, t *testing.T, userStore UserStore, users ...User) {
	for _, u := range users {
		err := userStore.CreateUser(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func seedGroupRoom(f *ChatFixture, creator User, name string, members ...User) string {
	usernames := make([]string, 0, len(members))
	for _, m := range members {
		usernames = append(usernames, m.Username)
	}

	roomID, err := f.chatStore.CreateRoom(f.ctx, RoomCreateInput{
		Name:    name,
		IsGroup: true,
		Members: usernames,
	}, creator.Username)
	if err != nil {
		f.t.Fatal(err)
	}
	return roomID
}

func seedMessage(f *ChatFixture, roomID string, sender User, body string) *Message {
	msg, err := f.chatStore.CreateMessage(f.ctx, MessageCreateInput{
		RoomID:     roomID,
		Sender:     sender.Username,
		SenderName: sender.Name,
		Body:       body,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return msg
}

// newTestSession builds a bare session for registry and broker tests. It has
// a buffered write stream but no websocket behind it.
func newTestSession(id, userID string, streamSize int) *Session {
	return &Session{
		id:          id,
		userID:      userID,
		name:        userID,
		writeStream: make(chan *Event, streamSize),
	}
}

func decodePayload(t *testing.T, e *Event, v interface{}) error {
	t.Helper()
	return json.Unmarshal(e.Payload, v)
}
