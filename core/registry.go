package core

import (
	"context"
	"fmt"
	"sync"
)

// MembershipChecker answers whether a user belongs to a room. The chat store
// satisfies it.
type MembershipChecker interface {
	IsRoomMember(ctx context.Context, roomID, user string) (bool, error)
}

// RoomRegistry maps each room with at least one live session to its set of
// subscribed sessions. A session subscribes to at most one room at a time;
// joining a new room implicitly leaves the previous one.
//
// The registry lock only guards the room map; each room carries its own lock
// so unrelated rooms never serialize on each other.
type RoomRegistry struct {
	members MembershipChecker

	mu    sync.RWMutex
	rooms map[string]*roomSubscribers
}

type roomSubscribers struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRoomRegistry(members MembershipChecker) *RoomRegistry {
	return &RoomRegistry{
		members: members,
		rooms:   make(map[string]*roomSubscribers),
	}
}

// Join subscribes the session to the room. A user that is not a member of
// the room fails with ErrNotAMember and no state changes. Joining the room
// the session is already subscribed to is a no-op.
func (r *RoomRegistry) Join(ctx context.Context, s *Session, roomID string) error {
	ok, err := r.members.IsRoomMember(ctx, roomID, s.UserID())
	if err != nil {
		return fmt.Errorf("IsRoomMember: %w", err)
	}
	if !ok {
		return ErrNotAMember
	}

	if s.Room() == roomID {
		return nil
	}

	if prev := s.Room(); prev != "" {
		r.remove(prev, s)
	}

	r.room(roomID).add(s)
	s.setRoom(roomID)
	return nil
}

// Leave unsubscribes the session from the room. It is idempotent; removing
// the last subscriber simply leaves the room without live subscribers.
func (r *RoomRegistry) Leave(s *Session, roomID string) {
	r.remove(roomID, s)
	if s.Room() == roomID {
		s.setRoom("")
	}
}

// LeaveCurrent unsubscribes the session from whatever room it is in.
// Called on channel close.
func (r *RoomRegistry) LeaveCurrent(s *Session) {
	if roomID := s.Room(); roomID != "" {
		r.Leave(s, roomID)
	}
}

// SubscribersOf returns a snapshot of the sessions currently subscribed to
// the room. The snapshot is consistent with the latest Join/Leave.
func (r *RoomRegistry) SubscribersOf(roomID string) []*Session {
	r.mu.RLock()
	subs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()
	sessions := make([]*Session, 0, len(subs.sessions))
	for _, s := range subs.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (r *RoomRegistry) room(roomID string) *roomSubscribers {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.rooms[roomID]
	if !ok {
		subs = &roomSubscribers{sessions: make(map[string]*Session)}
		r.rooms[roomID] = subs
	}
	return subs
}

// remove drops the session from the room's set. An emptied set is kept
// around; the room itself persists in the store regardless of live
// subscribers, and dropping the entry here would race a concurrent Join
// that already holds the set.
func (r *RoomRegistry) remove(roomID string, s *Session) {
	r.mu.RLock()
	subs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	subs.mu.Lock()
	delete(subs.sessions, s.ID())
	subs.mu.Unlock()
}

func (subs *roomSubscribers) add(s *Session) {
	subs.mu.Lock()
	subs.sessions[s.ID()] = s
	subs.mu.Unlock()
}
