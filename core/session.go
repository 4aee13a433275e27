package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Session bridges one client's realtime channel to the room registry and
// the message pipeline. It lives as long as the underlying websocket.
type Session struct {
	id     string
	userID string
	name   string

	conn        *websocket.Conn
	context     context.Context
	writeStream chan *Event
	limiter     *rate.Limiter
	ticker      *time.Ticker
	logger      *slog.Logger

	dispatch    func(context.Context, *Session, *Event)
	notifyClose func()

	mu     sync.Mutex
	room   string
	closed bool
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the id of the authenticated user behind the session.
func (s *Session) UserID() string { return s.userID }

// Name returns the user's display name.
func (s *Session) Name() string { return s.name }

// Room returns the id of the room the session is currently subscribed to,
// or the empty string.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
}

// Send queues an event on the session's write stream without blocking.
// It reports false when the stream is full or the session is closed.
// Send and close share the session lock, so a registry snapshot that still
// holds a just-closed session cannot send on a closed channel.
func (s *Session) Send(e *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.writeStream <- e:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.writeStream)
}

// SessionManager owns the websocket upgrade and the lifecycle of all live
// sessions. Inbound events are dispatched synchronously from each session's
// read loop, so events from one session keep their order while sessions
// never block each other.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	context context.Context
	wg      *sync.WaitGroup
	logger  *slog.Logger

	upgrader        websocket.Upgrader
	WriteStreamSize int

	// msgRate limits how fast a single session may push events inbound.
	msgRate  rate.Limit
	msgBurst int

	onEvent      func(context.Context, *Session, *Event)
	onConnect    func(*Session)
	onDisconnect func(*Session)
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*SessionManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *SessionManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		m.logger = l
	}
}

func WithMessageRate(limit rate.Limit, burst int) ManagerOption {
	return func(m *SessionManager) {
		m.msgRate = limit
		m.msgBurst = burst
	}
}

func NewSessionManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:        make(map[string]*Session),
		context:         ctx,
		wg:              wg,
		logger:          logger,
		upgrader:        defaultUpgrader,
		WriteStreamSize: 100,
		msgRate:         rate.Limit(10),
		msgBurst:        20,
		onEvent:         func(context.Context, *Session, *Event) {},
		onConnect:       func(*Session) {},
		onDisconnect:    func(*Session) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OnEvent sets the handler invoked for every inbound client event.
func (m *SessionManager) OnEvent(f func(context.Context, *Session, *Event)) {
	m.onEvent = f
}

func (m *SessionManager) OnConnect(f func(*Session)) {
	m.onConnect = f
}

// OnDisconnect sets the callback invoked after a session is removed from
// the manager. The registry's implicit leave hangs off it.
func (m *SessionManager) OnDisconnect(f func(*Session)) {
	m.onDisconnect = f
}

// Connect upgrades the request to a websocket and starts a session for the
// authenticated user.
func (m *SessionManager) Connect(userID, name string, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("Upgrade: %w", err)
	}

	id := uuid.New().String()
	session := &Session{
		id:          id,
		userID:      userID,
		name:        name,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		limiter:     rate.NewLimiter(m.msgRate, m.msgBurst),
		ticker:      time.NewTicker(pingPeriod),
		logger: m.logger.With(
			slog.String("session_id", id), slog.String("user", userID)),
		dispatch: m.onEvent,
		notifyClose: func() {
			m.disconnect(id)
		},
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		session.readLoop()
	}()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		session.writeLoop()
	}()

	m.logger.Info("session connected",
		slog.String("session_id", id), slog.String("user", userID))
	m.onConnect(session)

	return nil
}

// Disconnect tears down the session and closes its channel.
func (m *SessionManager) Disconnect(s *Session) {
	m.disconnect(s.ID())
}

func (m *SessionManager) disconnect(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	// Leave rooms before closing the stream so the registry stops handing
	// the session to publishers first.
	m.onDisconnect(session)
	session.close()
	m.logger.Info("session disconnected",
		slog.String("session_id", id), slog.String("user", session.UserID()))
}

// Close disconnects every live session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.disconnect(id)
	}
}
