package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAMember is returned when a user acts on a room they are not a
	// member of.
	ErrNotAMember = errors.New("not a member of the room")
	// ErrForbidden is returned when an edit or delete falls outside the
	// sender's trailing run of messages.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the target room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for empty message bodies and malformed ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable is returned when the durable store cannot be
	// reached. The failed operation has no partial effects.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Room is a container of messages shared among its members.
// A non-group room is an implicit two-party conversation and has no name.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
}

// Message is a chat message owned by its room. The id is assigned by the
// store at persistence time; insertion order is the authoritative order of
// a room's history.
type Message struct {
	ID         int       `json:"id"`
	RoomID     string    `json:"room_id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageCreateInput represents the input for creating a message.
type MessageCreateInput struct {
	RoomID     string `json:"room_id" validate:"required"`
	Sender     string `json:"sender" validate:"required"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body" validate:"required"`
}

// Validate validates the message input.
func (m *MessageCreateInput) Validate() error {
	return validate.Struct(m)
}

// RoomCreateInput represents the input for creating a room.
// Group rooms carry a name and an explicit member list; non-group rooms
// have exactly two members and no name.
type RoomCreateInput struct {
	Name    string   `json:"name"`
	IsGroup bool     `json:"is_group"`
	Members []string `json:"members" validate:"required,min=1"`
}

// ChatStore is the durable store for rooms, memberships and messages.
// It is the source of truth for history and for edit/delete mutations.
type ChatStore interface {

	// CreateRoom creates a room owned by creator and returns its id.
	// The creator is always a member, whether listed in the input or not.
	// A group room requires a name and at least two distinct members,
	// otherwise ErrInvalidInput. A non-group room requires exactly two
	// distinct members; if a non-group room for the same pair already
	// exists, its id is returned instead of creating another.
	// Unknown members fail with ErrInvalidInput.
	CreateRoom(ctx context.Context, input RoomCreateInput, creator string) (string, error)

	// GetRoomByID returns the room with its member list.
	// If the room is not found, it returns nil.
	GetRoomByID(ctx context.Context, roomID string) (*Room, error)

	// ListRooms returns the rooms the user is a member of, newest first.
	// If the limit is a zero value, the limit is set to 100.
	ListRooms(ctx context.Context, user string, offset, limit int) ([]Room, error)

	// GetRoomMembers returns the user ids of a room's members.
	// If the room is not found, it returns nil.
	GetRoomMembers(ctx context.Context, roomID string) ([]string, error)

	// IsRoomMember reports whether the user is a member of the room.
	IsRoomMember(ctx context.Context, roomID, user string) (bool, error)

	// CreateMessage persists a message and returns it with its assigned id.
	// A sender that is not a member of the room fails with ErrNotAMember.
	// An empty body fails with ErrInvalidInput.
	CreateMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// GetMessageByID returns the message with the given id.
	// If the message is not found, it returns nil.
	GetMessageByID(ctx context.Context, messageID int) (*Message, error)

	// ListMessages returns a room's messages in ascending insertion order.
	// Reading offset and limit can be specified to paginate the results.
	// If the limit is a zero value, the limit is set to 100.
	ListMessages(ctx context.Context, roomID string, offset, limit int) ([]Message, error)

	// EditMessage replaces the body of a message and returns the updated
	// message. The actor must own the message's trailing run
	// (see CanMutate), otherwise ErrForbidden. A missing message fails
	// with ErrNotFound, an empty body with ErrInvalidInput.
	EditMessage(ctx context.Context, messageID int, actor, newBody string) (*Message, error)

	// DeleteMessage removes a message and returns it as it was.
	// Authorization follows the same trailing-run rule as EditMessage.
	DeleteMessage(ctx context.Context, messageID int, actor string) (*Message, error)
}
