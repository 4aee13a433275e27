package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/okwama/moonsunclient-sub001/core"
)

type JoinPayload struct {
	RoomID string `json:"room_id"`
}

type LeavePayload struct {
	RoomID string `json:"room_id"`
}

type MessagePayload struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

type EditMessagePayload struct {
	MessageID int    `json:"message_id"`
	Body      string `json:"body"`
}

type DeleteMessagePayload struct {
	MessageID int `json:"message_id"`
}

type JoinedPayload struct {
	RoomID string `json:"room_id"`
}

type LeftPayload struct {
	RoomID string `json:"room_id"`
}

type MessageDeletedPayload struct {
	MessageID int    `json:"message_id"`
	RoomID    string `json:"room_id"`
}

// dispatchEvent is the single entry point for inbound client events. It runs
// on the session's read loop, so events from one client are handled in the
// order they were sent. A failing handler only ever answers the session that
// issued the event; nothing is broadcast on failure.
func (app *App) dispatchEvent(ctx context.Context, s *core.Session, e *core.Event) {
	var err error
	switch e.Type {
	case core.EventJoin:
		err = app.handleJoin(ctx, s, e)
	case core.EventLeave:
		err = app.handleLeave(ctx, s, e)
	case core.EventMessage:
		err = app.handleMessage(ctx, s, e)
	case core.EventEditMessage:
		err = app.handleEditMessage(ctx, s, e)
	case core.EventDeleteMessage:
		err = app.handleDeleteMessage(ctx, s, e)
	default:
		err = fmt.Errorf("unknown event type %q: %w", e.Type, core.ErrInvalidInput)
	}

	if err != nil {
		app.logger.Error(err.Error(),
			slog.String("event", e.Type), slog.String("session_id", s.ID()))
		app.sendError(s, err)
	}
}

func (app *App) handleJoin(ctx context.Context, s *core.Session, e *core.Event) error {
	var payload JoinPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal join payload: %w", core.ErrInvalidInput)
	}
	if payload.RoomID == "" {
		return fmt.Errorf("join without room id: %w", core.ErrInvalidInput)
	}

	if err := app.registry.Join(ctx, s, payload.RoomID); err != nil {
		return fmt.Errorf("Join: %w", err)
	}

	ack, err := core.NewEvent(core.EventJoined, JoinedPayload{RoomID: payload.RoomID})
	if err != nil {
		return err
	}
	s.Send(ack)
	return nil
}

func (app *App) handleLeave(ctx context.Context, s *core.Session, e *core.Event) error {
	var payload LeavePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal leave payload: %w", core.ErrInvalidInput)
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = s.Room()
	}
	if roomID == "" {
		return nil
	}

	app.registry.Leave(s, roomID)

	ack, err := core.NewEvent(core.EventLeft, LeftPayload{RoomID: roomID})
	if err != nil {
		return err
	}
	s.Send(ack)
	return nil
}

func (app *App) handleMessage(ctx context.Context, s *core.Session, e *core.Event) error {
	var payload MessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal message payload: %w", core.ErrInvalidInput)
	}
	if payload.RoomID == "" || payload.RoomID != s.Room() {
		return fmt.Errorf("message to a room the session has not joined: %w", core.ErrInvalidInput)
	}

	msg, err := app.chatStore.CreateMessage(ctx, core.MessageCreateInput{
		RoomID:     payload.RoomID,
		Sender:     s.UserID(),
		SenderName: s.Name(),
		Body:       payload.Body,
	})
	if err != nil {
		return fmt.Errorf("CreateMessage: %w", err)
	}

	created, err := core.NewEvent(core.EventMessageCreated, msg)
	if err != nil {
		return err
	}
	app.broker.Publish(ctx, msg.RoomID, created)
	return nil
}

func (app *App) handleEditMessage(ctx context.Context, s *core.Session, e *core.Event) error {
	var payload EditMessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal edit_message payload: %w", core.ErrInvalidInput)
	}
	if err := app.requireJoinedToMessageRoom(ctx, s, payload.MessageID); err != nil {
		return err
	}

	msg, err := app.chatStore.EditMessage(ctx, payload.MessageID, s.UserID(), payload.Body)
	if err != nil {
		return fmt.Errorf("EditMessage: %w", err)
	}

	edited, err := core.NewEvent(core.EventMessageEdited, msg)
	if err != nil {
		return err
	}
	app.broker.Publish(ctx, msg.RoomID, edited)
	return nil
}

func (app *App) handleDeleteMessage(ctx context.Context, s *core.Session, e *core.Event) error {
	var payload DeleteMessagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal delete_message payload: %w", core.ErrInvalidInput)
	}
	if err := app.requireJoinedToMessageRoom(ctx, s, payload.MessageID); err != nil {
		return err
	}

	msg, err := app.chatStore.DeleteMessage(ctx, payload.MessageID, s.UserID())
	if err != nil {
		return fmt.Errorf("DeleteMessage: %w", err)
	}

	deleted, err := core.NewEvent(core.EventMessageDeleted, MessageDeletedPayload{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
	})
	if err != nil {
		return err
	}
	app.broker.Publish(ctx, msg.RoomID, deleted)
	return nil
}

// requireJoinedToMessageRoom rejects a mutation event unless the session is
// joined to the room holding the target message, mirroring the room check on
// the message event.
func (app *App) requireJoinedToMessageRoom(ctx context.Context, s *core.Session, messageID int) error {
	msg, err := app.chatStore.GetMessageByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("GetMessageByID: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message %d: %w", messageID, core.ErrNotFound)
	}
	if s.Room() == "" || msg.RoomID != s.Room() {
		return fmt.Errorf("mutation of a message outside the joined room: %w", core.ErrInvalidInput)
	}
	return nil
}

// sendError answers the requesting session with an error event. The message
// of an unrecognized error is not leaked to the client.
func (app *App) sendError(s *core.Session, err error) {
	code, ok := wsErrorCode(err)
	msg := "operation failed"
	if ok {
		msg = err.Error()
	}

	e, eventErr := core.NewEvent(core.EventError, core.ErrorPayload{
		Code:    code,
		Message: msg,
	})
	if eventErr != nil {
		return
	}
	s.Send(e)
}

// wsErrorCode maps an error to its wire code. Unrecognized errors report the
// store as unavailable, the only dependency that can fail unexpectedly.
func wsErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, core.ErrNotAMember):
		return "not_a_member", true
	case errors.Is(err, core.ErrForbidden):
		return "forbidden", true
	case errors.Is(err, core.ErrNotFound):
		return "not_found", true
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input", true
	case errors.Is(err, core.ErrStoreUnavailable):
		return "store_unavailable", true
	default:
		return "store_unavailable", false
	}
}
