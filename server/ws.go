package server

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/MustfainTariq/Jama-Translator/channel"
	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/segment"
	"github.com/MustfainTariq/Jama-Translator/session"
)

const writeWait = 10 * time.Second

type wsError struct {
	Error string `json:"error"`
}

// handleIngest receives caption segments over a websocket and feeds them to
// the orchestrator. Rejected segments produce an error frame; the connection
// stays open so the producer can keep streaming.
func (s *Server) handleIngest(ws *websocket.Conn) {
	defer ws.Close()
	s.logger.Infow("ingest connected", "remote", ws.RemoteAddr())

	for {
		var ev segment.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnw("ingest read failed", "error", err)
			}
			return
		}

		if err := s.orch.Ingest(ev); err != nil {
			switch {
			case errors.Is(err, session.ErrNotFound),
				errors.Is(err, session.ErrNotAccepting),
				errors.Is(err, segment.ErrInvalidEvent):
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if werr := ws.WriteJSON(wsError{Error: err.Error()}); werr != nil {
					return
				}
			default:
				s.logger.Errorw("ingest failed", "session", ev.SessionID, "sequence", ev.Sequence, "error", err)
				return
			}
		}
	}
}

// handleSubscribe attaches a websocket client to one session's translation
// channel. The hub replays the backlog first, then live messages stream until
// the session ends or the client goes away.
func (s *Server) handleSubscribe(ws *websocket.Conn) {
	defer ws.Close()

	id := channel.ID{
		SessionID: ws.Params("id"),
		Language:  ws.Query("lang"),
	}

	if _, err := s.orch.Get(id.SessionID); err != nil {
		_ = ws.WriteJSON(wsError{Error: err.Error()})
		return
	}

	sub, err := s.hub.Subscribe(id)
	if err != nil {
		if errors.Is(err, hub.ErrChannelNotFound) {
			_ = ws.WriteJSON(wsError{Error: "no such channel; is the session started?"})
		} else {
			_ = ws.WriteJSON(wsError{Error: err.Error()})
		}
		return
	}
	defer s.hub.Unsubscribe(sub)

	s.logger.Infow("subscriber connected",
		"subscriber", sub.ID(), "session", id.SessionID, "language", id.Language)

	// The reader only watches for the client closing its end.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub.Out():
			if !ok {
				// Session ended, or the hub dropped us as too slow.
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "channel closed"))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
