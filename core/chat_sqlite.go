package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type SQLiteChatStore struct {
	db        *sql.DB
	userStore UserStore
}

func NewSQLiteChatStore(db *sql.DB, userStore UserStore) *SQLiteChatStore {
	return &SQLiteChatStore{
		db:        db,
		userStore: userStore,
	}
}

// privateMemberKey builds the unique key of a two-party room.
func privateMemberKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (s *SQLiteChatStore) CreateRoom(ctx context.Context, input RoomCreateInput, creator string) (string, error) {
	unique := make(map[string]struct{}, len(input.Members)+1)
	unique[creator] = struct{}{}
	for _, m := range input.Members {
		unique[m] = struct{}{}
	}

	members := make([]string, 0, len(unique))
	for m := range unique {
		members = append(members, m)
	}
	sort.Strings(members)

	if input.IsGroup {
		if input.Name == "" || len(members) < 2 {
			return "", ErrInvalidInput
		}
	} else {
		if len(members) != 2 {
			return "", ErrInvalidInput
		}
	}

	us, err := s.userStore.GetUsersByUsernames(ctx, members...)
	if err != nil {
		return "", fmt.Errorf("GetUsersByUsernames: %w", err)
	}
	if len(us) != len(members) {
		return "", ErrInvalidInput
	}

	var memberKey sql.NullString
	if !input.IsGroup {
		memberKey = sql.NullString{String: privateMemberKey(members[0], members[1]), Valid: true}

		// Return the existing room for this pair if one was already created.
		existing, err := s.roomIDByMemberKey(ctx, memberKey.String)
		if err != nil {
			return "", err
		}
		if existing != "" {
			return existing, nil
		}
	}

	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, is_group, member_key, created_by, created_at)
		VALUES (@id, @name, @is_group, @member_key, @created_by, @created_at)`,
		sql.Named("id", id), sql.Named("name", input.Name),
		sql.Named("is_group", input.IsGroup), sql.Named("member_key", memberKey),
		sql.Named("created_by", creator), sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		// A concurrent CreateRoom for the same pair won the race; hand the
		// existing room back instead of failing.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return s.roomIDByMemberKey(ctx, memberKey.String)
		}
		return "", fmt.Errorf("ExecContext(insert rooms): %w", err)
	}

	valuesTmpl := make([]string, 0, len(members))
	values := make([]interface{}, 0, len(members)+1)
	values = append(values, sql.Named("room_id", id))
	for i, m := range members {
		valuesTmpl = append(valuesTmpl, fmt.Sprintf("(@room_id, @username%d)", i))
		values = append(values, sql.Named(fmt.Sprintf("username%d", i), m))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_members (room_id, username) VALUES `+strings.Join(valuesTmpl, ","),
		values...)
	if err != nil {
		return "", fmt.Errorf("ExecContext(insert room_members): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("Commit: %w", err)
	}

	return id, nil
}

func (s *SQLiteChatStore) roomIDByMemberKey(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id FROM rooms WHERE member_key = @member_key",
		sql.Named("member_key", key))

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("row.Scan: %w", err)
	}
	return id, nil
}

func (s *SQLiteChatStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	query := `
	SELECT r.id, r.name, r.is_group, r.created_by, r.created_at, ru.username
	FROM rooms AS r
	INNER JOIN room_members AS ru ON r.id = ru.room_id
	WHERE r.id = @id
	ORDER BY ru.username
	`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		if room == nil {
			room = &Room{Members: make([]string, 0, 2)}
		}
		var member string
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup,
			&room.CreatedBy, &room.CreatedAt, &member); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		room.Members = append(room.Members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return room, nil
}

func (s *SQLiteChatStore) ListRooms(ctx context.Context, user string, offset, limit int) ([]Room, error) {
	if limit == 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
	WITH my_rooms AS
	(SELECT r.id, r.name, r.is_group, r.created_by, r.created_at
	FROM room_members AS ru
	INNER JOIN rooms AS r ON ru.room_id = r.id
	WHERE ru.username = @username
	ORDER BY r.created_at DESC, r.id
	LIMIT @limit OFFSET @offset)
	SELECT my_rooms.id, my_rooms.name, my_rooms.is_group,
	my_rooms.created_by, my_rooms.created_at, ru.username
	FROM my_rooms
	INNER JOIN room_members AS ru ON my_rooms.id = ru.room_id
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("username", user), sql.Named("limit", limit), sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	roomIdx := make(map[string]int)

	for rows.Next() {
		var room Room
		var member string
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup,
			&room.CreatedBy, &room.CreatedAt, &member); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		idx, ok := roomIdx[room.ID]
		if !ok {
			room.Members = []string{}
			rooms = append(rooms, room)
			idx = len(rooms) - 1
			roomIdx[room.ID] = idx
		}
		rooms[idx].Members = append(rooms[idx].Members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return rooms, nil
}

func (s *SQLiteChatStore) GetRoomMembers(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username FROM room_members WHERE room_id = @room_id ORDER BY username",
		sql.Named("room_id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return members, nil
}

func (s *SQLiteChatStore) IsRoomMember(ctx context.Context, roomID, user string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM room_members WHERE room_id = @room_id AND username = @username",
		sql.Named("room_id", roomID), sql.Named("username", user))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("row.Scan: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteChatStore) CreateMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, ErrInvalidInput
	}

	ok, err := s.IsRoomMember(ctx, input.RoomID, input.Sender)
	if err != nil {
		return nil, fmt.Errorf("IsRoomMember: %w", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	sentAt := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (room_id, sender, sender_name, body, sent_at)
		VALUES (@room_id, @sender, @sender_name, @body, @sent_at) RETURNING id`,
		sql.Named("room_id", input.RoomID), sql.Named("sender", input.Sender),
		sql.Named("sender_name", input.SenderName), sql.Named("body", input.Body),
		sql.Named("sent_at", sentAt))

	var id int
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return &Message{
		ID:         id,
		RoomID:     input.RoomID,
		Sender:     input.Sender,
		SenderName: input.SenderName,
		Body:       input.Body,
		SentAt:     sentAt,
	}, nil
}

func (s *SQLiteChatStore) GetMessageByID(ctx context.Context, messageID int) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, sender, sender_name, body, sent_at
		FROM messages WHERE id = @id`,
		sql.Named("id", messageID))

	var msg Message
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.Sender,
		&msg.SenderName, &msg.Body, &msg.SentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return &msg, nil
}

func (s *SQLiteChatStore) ListMessages(ctx context.Context, roomID string, offset, limit int) ([]Message, error) {
	if limit == 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
	SELECT id, room_id, sender, sender_name, body, sent_at
	FROM messages
	WHERE room_id = @room_id
	ORDER BY id
	LIMIT @limit OFFSET @offset
	`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("limit", limit), sql.Named("offset", offset))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.RoomID, &message.Sender,
			&message.SenderName, &message.Body, &message.SentAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return messages, nil
}

func (s *SQLiteChatStore) EditMessage(ctx context.Context, messageID int, actor, newBody string) (*Message, error) {
	if newBody == "" {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	msg, err := s.authorizeMutation(ctx, tx, messageID, actor)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET body = @body WHERE id = @id",
		sql.Named("body", newBody), sql.Named("id", messageID))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(update messages): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}

	msg.Body = newBody
	return msg, nil
}

func (s *SQLiteChatStore) DeleteMessage(ctx context.Context, messageID int, actor string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	msg, err := s.authorizeMutation(ctx, tx, messageID, actor)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM messages WHERE id = @id", sql.Named("id", messageID))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(delete messages): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Commit: %w", err)
	}

	return msg, nil
}

// authorizeMutation loads the target message and the room's persisted suffix
// from it onward, then applies the trailing-run rule. It runs inside the
// mutation's transaction so no message can slip in between the check and the
// write.
func (s *SQLiteChatStore) authorizeMutation(ctx context.Context, tx *sql.Tx, messageID int, actor string) (*Message, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, room_id, sender, sender_name, body, sent_at
		FROM messages WHERE id = @id`,
		sql.Named("id", messageID))

	var msg Message
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.Sender,
		&msg.SenderName, &msg.Body, &msg.SentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, sender FROM messages
		WHERE room_id = @room_id AND id >= @id ORDER BY id`,
		sql.Named("room_id", msg.RoomID), sql.Named("id", msg.ID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var suffix []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		suffix = append(suffix, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	if !CanMutate(suffix, msg, actor) {
		return nil, ErrForbidden
	}

	return &msg, nil
}
