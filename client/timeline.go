// Package client implements the consuming side of the realtime protocol:
// a reconciled, ordered view of one room's messages, merged from fetched
// history, optimistic local sends and broker events.
package client

import (
	"sync"

	"github.com/okwama/moonsunclient-sub001/core"
)

// Entry is one message in the timeline. A pending entry is a locally
// composed message that the store has not yet acknowledged; it has no
// message id and is keyed by LocalID instead.
type Entry struct {
	Message core.Message
	Pending bool
	LocalID int
}

// Timeline is a client's single source of truth for the room currently
// open. It deduplicates by message id, so applying the same
// message_created event twice leaves the timeline unchanged.
//
// Only one room is observed at a time; switching rooms resets the timeline,
// matching the one-room-per-session rule on the server.
type Timeline struct {
	mu          sync.Mutex
	roomID      string
	entries     []Entry
	nextLocalID int
}

// NewTimeline builds a timeline for a room, seeded with history fetched
// from the store in insertion order.
func NewTimeline(roomID string, history []core.Message) *Timeline {
	t := &Timeline{}
	t.Reset(roomID, history)
	return t
}

// RoomID returns the room the timeline currently observes.
func (t *Timeline) RoomID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomID
}

// Reset discards the current view and switches to a new room's history.
func (t *Timeline) Reset(roomID string, history []core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roomID = roomID
	t.entries = make([]Entry, 0, len(history))
	for _, m := range history {
		t.entries = append(t.entries, Entry{Message: m})
	}
}

// AppendLocal renders a just-composed message optimistically, before the
// store acknowledges it. The returned local id identifies the pending entry
// until confirmation.
func (t *Timeline) AppendLocal(sender, senderName, body string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextLocalID++
	t.entries = append(t.entries, Entry{
		Message: core.Message{
			RoomID:     t.roomID,
			Sender:     sender,
			SenderName: senderName,
			Body:       body,
		},
		Pending: true,
		LocalID: t.nextLocalID,
	})
	return t.nextLocalID
}

// Confirm merges the store-acknowledged message with its optimistic entry.
// The pending entry is matched as the most recent unconfirmed entry for the
// message's sender and replaced in place, never duplicated. If the sender's
// own broadcast already arrived (the id is present), the pending entry is
// simply dropped.
func (t *Timeline) Confirm(msg core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.RoomID != t.roomID {
		return
	}

	pending := -1
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Pending && t.entries[i].Message.Sender == msg.Sender {
			pending = i
			break
		}
	}

	if t.indexOf(msg.ID) >= 0 {
		if pending >= 0 {
			t.entries = append(t.entries[:pending], t.entries[pending+1:]...)
		}
		return
	}

	if pending >= 0 {
		t.entries[pending] = Entry{Message: msg}
		return
	}
	t.entries = append(t.entries, Entry{Message: msg})
}

// ApplyCreated appends a broadcast message. An event whose id is already
// present is a no-op, which makes the sender's own echoed broadcast safe.
func (t *Timeline) ApplyCreated(msg core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.RoomID != t.roomID {
		return
	}
	if t.indexOf(msg.ID) >= 0 {
		return
	}
	t.entries = append(t.entries, Entry{Message: msg})
}

// ApplyEdited replaces the body of an existing message. Unknown ids are
// ignored; the next history fetch reconciles them.
func (t *Timeline) ApplyEdited(msg core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.RoomID != t.roomID {
		return
	}
	if i := t.indexOf(msg.ID); i >= 0 {
		t.entries[i].Message.Body = msg.Body
	}
}

// ApplyDeleted removes a message from the view.
func (t *Timeline) ApplyDeleted(messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexOf(messageID); i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
	}
}

// Messages returns a snapshot of the reconciled sequence, pending entries
// included, in display order.
func (t *Timeline) Messages() []core.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]core.Message, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.Message)
	}
	return out
}

// Pending reports how many locally-sent messages still await confirmation.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.Pending {
			n++
		}
	}
	return n
}

// indexOf returns the position of the confirmed message with the given id,
// or -1. Callers hold the lock.
func (t *Timeline) indexOf(id int) int {
	for i, e := range t.entries {
		if !e.Pending && e.Message.ID == id {
			return i
		}
	}
	return -1
}
