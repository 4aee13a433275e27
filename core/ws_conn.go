package core

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

func (s *Session) readLoop() {
	s.logger.Debug("read loop started")
	defer func() {
		s.notifyClose()
		s.conn.Close()
		s.logger.Debug("read loop stopped")
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := s.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				s.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			s.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			s.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			s.logger.Error(err.Error())
			continue
		}

		if !s.limiter.Allow() {
			s.logger.Warn("event rate limit exceeded", "type", event.Type)
			if e, err := NewEvent(EventError, ErrorPayload{
				Code:    "rate_limited",
				Message: "too many events, slow down",
			}); err == nil {
				s.Send(e)
			}
			continue
		}

		// Dispatch inline: events from one session are handled in arrival
		// order, and run on the manager's context so an in-flight store
		// write survives the channel closing.
		s.dispatch(s.context, s, &event)
	}
}

func (s *Session) writeLoop() {
	s.logger.Debug("write loop started")
	var err error
	defer func() {
		s.ticker.Stop()
		if err != nil {
			s.conn.Close()
		}
		s.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-s.writeStream:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, werr := s.conn.NextWriter(websocket.TextMessage)
			if werr != nil {
				err = werr
				s.logger.Error(fmt.Sprintf("NextWriter: %v", werr))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				s.logger.Error(err.Error())
			}
			w.Close()
		case <-s.context.Done():
			s.logger.Debug("context done")
			return
		case <-s.ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error(fmt.Sprintf("WritePing: %v", err))
				return
			}
		}
	}
}

// ErrorPayload is the payload of an error event, sent only to the session
// whose request failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
