package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okwama/moonsunclient-sub001/core"
)

// EventPublisher is the slice of the broker the HTTP handlers need.
type EventPublisher interface {
	Publish(ctx context.Context, roomID string, e *core.Event)
}

type ChatHandler struct {
	chatStore core.ChatStore
	publisher EventPublisher
}

func NewChatHandler(chatStore core.ChatStore, publisher EventPublisher) *ChatHandler {
	return &ChatHandler{chatStore: chatStore, publisher: publisher}
}

type CreateRoomResponse struct {
	ID string `json:"id"`
}

func (h *ChatHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)

	var payload core.RoomCreateInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode room input: %w", core.ErrInvalidInput)
	}
	r.Body.Close()

	id, err := h.chatStore.CreateRoom(r.Context(), payload, session.Username)
	if err != nil {
		return fmt.Errorf("CreateRoom: %w", err)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateRoomResponse{ID: id})
	return nil
}

func (h *ChatHandler) GetMyRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	offset, limit := pagination(r)

	rooms, err := h.chatStore.ListRooms(r.Context(), session.Username, offset, limit)
	if err != nil {
		return fmt.Errorf("ListRooms: %w", err)
	}

	if rooms == nil {
		rooms = []core.Room{}
	}
	json.NewEncoder(w).Encode(rooms)
	return nil
}

func (h *ChatHandler) GetRoomByIDHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	id := r.PathValue("roomID")

	inRoom, err := h.chatStore.IsRoomMember(r.Context(), id, session.Username)
	if err != nil {
		return fmt.Errorf("IsRoomMember: %w", err)
	}
	if !inRoom {
		return core.ErrNotAMember
	}

	room, err := h.chatStore.GetRoomByID(r.Context(), id)
	if err != nil {
		return fmt.Errorf("GetRoomByID: %w", err)
	}
	if room == nil {
		return core.ErrNotFound
	}

	json.NewEncoder(w).Encode(room)
	return nil
}

// GetRoomMessagesHandler returns a page of the room's history in insertion
// order. It backs both the initial view of a room and client reconciliation
// after a reconnect.
func (h *ChatHandler) GetRoomMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	roomID := r.PathValue("roomID")
	offset, limit := pagination(r)

	inRoom, err := h.chatStore.IsRoomMember(r.Context(), roomID, session.Username)
	if err != nil {
		return fmt.Errorf("IsRoomMember: %w", err)
	}
	if !inRoom {
		return core.ErrNotAMember
	}

	messages, err := h.chatStore.ListMessages(r.Context(), roomID, offset, limit)
	if err != nil {
		return fmt.Errorf("ListMessages: %w", err)
	}

	if messages == nil {
		messages = []core.Message{}
	}
	json.NewEncoder(w).Encode(messages)
	return nil
}

type EditMessageRequest struct {
	Body string `json:"body"`
}

func (h *ChatHandler) EditMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	messageID, err := strconv.Atoi(r.PathValue("messageID"))
	if err != nil {
		return fmt.Errorf("malformed message id: %w", core.ErrInvalidInput)
	}

	var payload EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode edit input: %w", core.ErrInvalidInput)
	}
	r.Body.Close()

	msg, err := h.chatStore.EditMessage(r.Context(), messageID, session.Username, payload.Body)
	if err != nil {
		return fmt.Errorf("EditMessage: %w", err)
	}

	if edited, err := core.NewEvent(core.EventMessageEdited, msg); err == nil {
		h.publisher.Publish(r.Context(), msg.RoomID, edited)
	}

	json.NewEncoder(w).Encode(msg)
	return nil
}

func (h *ChatHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	messageID, err := strconv.Atoi(r.PathValue("messageID"))
	if err != nil {
		return fmt.Errorf("malformed message id: %w", core.ErrInvalidInput)
	}

	msg, err := h.chatStore.DeleteMessage(r.Context(), messageID, session.Username)
	if err != nil {
		return fmt.Errorf("DeleteMessage: %w", err)
	}

	if deleted, err := core.NewEvent(core.EventMessageDeleted, MessageDeletedPayload{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
	}); err == nil {
		h.publisher.Publish(r.Context(), msg.RoomID, deleted)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func pagination(r *http.Request) (offset, limit int) {
	query := r.URL.Query()
	limit, _ = strconv.Atoi(query.Get("limit"))
	offset, _ = strconv.Atoi(query.Get("offset"))
	return offset, limit
}
