// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/realms/internal/middleware"
	"github.com/jason-s-yu/realms/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	roomSubprotocol = "room"
	pingInterval    = 30 * time.Second
	writeTimeout    = 10 * time.Second
	chatTimeout     = 2 * time.Minute
)

// roomPacket is a client frame on the room socket.
type roomPacket struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Ready   *bool  `json:"ready,omitempty"`
}

// roomWS upgrades an active player to the room's live feed. The first frame is a
// room_state snapshot; afterwards every room event is pushed as it happens.
func (s *Server) roomWS(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	code := r.PathValue("code")

	rm, err := s.Rooms.Snapshot(r.Context(), code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if p, ok := rm.Player(me.UserID); !ok || !p.Active() {
		s.fail(w, r, room.ErrNotPlayer)
		return
	}
	code = rm.Code

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{roomSubprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != roomSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the room subprotocol")
		return
	}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := room.NewConnection(me.UserID, me.Username, cancel)
	hub := s.Hubs.Attach(code, conn)
	defer hub.RemoveConnection(conn)

	// snapshot again after attaching so no event falls between the two
	if rm, err = s.Rooms.Snapshot(ctx, code); err != nil {
		c.Close(InvalidRoomCodeError, "room does not exist")
		return
	}
	conn.Write(room.Event{Type: room.EventRoomState, RoomCode: code, Room: rm, At: time.Now().UTC()})

	go s.writePump(ctx, c, conn)
	err = s.readPump(ctx, c, conn, code)
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)

	if errors.Is(err, room.ErrNotPlayer) {
		c.Close(NotInRoomError, "no longer in room")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// readPump handles client packets until the socket closes or the connection is replaced.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *room.Connection, code string) error {
	log := s.Logger.WithFields(logrus.Fields{"room": code, "user": conn.UserID})
	// a fresh connection may send a short burst, then one chat line every two seconds
	limiter := rate.NewLimiter(rate.Every(2*time.Second), 3)

	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var packet roomPacket
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError(code, "Invalid JSON format")
			continue
		}

		switch packet.Type {
		case "chat":
			if !limiter.Allow() || !s.Limiter.Allow(conn.UserID.String()) {
				conn.WriteError(code, "rate limit exceeded, try again shortly")
				continue
			}
			// narration can take a while; keep reading so pings are answered
			go s.handleChat(ctx, conn, code, packet.Content)
		case "ready":
			if packet.Ready == nil {
				conn.WriteError(code, "ready packet needs a ready field")
				continue
			}
			if _, err := s.Rooms.SetReady(ctx, code, conn.UserID, *packet.Ready); err != nil {
				if errors.Is(err, room.ErrNotPlayer) {
					return err
				}
				_, msg := statusFor(err)
				conn.WriteError(code, msg)
			}
		default:
			log.Debugf("unknown packet type %q", packet.Type)
			conn.WriteError(code, "unknown packet type")
		}
	}
}

// handleChat sends one chat line. It outlives the socket so a reply already in progress
// still lands in the room log.
func (s *Server) handleChat(ctx context.Context, conn *room.Connection, code, content string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chatTimeout)
	defer cancel()

	_, err := s.Rooms.SendMessage(ctx, code, conn.UserID, content)
	if err == nil {
		return
	}
	if !errors.Is(err, room.ErrNarrationFailed) {
		s.Logger.WithError(err).WithField("room", code).Debug("chat message rejected")
	}
	_, msg := statusFor(err)
	conn.WriteError(code, msg)
}

// writePump drains the connection's queue onto the socket and keeps it alive with pings.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *room.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case ev := <-conn.OutChan:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				s.Logger.Warnf("room %s: failed to write to websocket for user %v: %v", ev.RoomCode, conn.UserID, err)
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				s.Logger.Warnf("failed to ping user %v: %v, assuming disconnect", conn.UserID, err)
				return
			}
		}
	}
}
