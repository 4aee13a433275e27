package core

import (
	"encoding/json"
	"fmt"
	"io"
)

// Client to server event types.
const (
	EventJoin          = "join"
	EventLeave         = "leave"
	EventMessage       = "message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
)

// Server to client event types.
const (
	EventJoined         = "joined"
	EventLeft           = "left"
	EventMessageCreated = "message_created"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// Event is the unit of the realtime wire protocol, a JSON text frame with a
// type tag and a type-specific payload.
type Event struct {
	Type string `json:"type"`
	// Payload is decoded into a specific type by the handler.
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{Type: %s, Payload.Size: %d}", e.Type, len(e.Payload))
}

// NewEvent builds an event by marshaling payload.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Type: t, Payload: b}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}
