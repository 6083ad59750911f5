// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/monopolymoney/moneyservice/internal/room"
	"github.com/monopolymoney/moneyservice/internal/store"
)

// roomConn is one phone's live presence on a room stream.
type roomConn struct {
	UserID  string
	Cancel  func()
	OutChan chan map[string]interface{}
}

// Write pushes a message onto the connection's out channel non-blockingly.
func (c *roomConn) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		logrus.Warnf("roomConn: OutChan for user %s closed or full. Dropped message type '%s'.", c.UserID, msgType)
	}
}

func (c *roomConn) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// RoomWSHandler upgrades to a WebSocket on /room/ws/{code}. The server
// streams a full room snapshot on every store change; the client sends
// intents. Dropping the socket does not remove the player from the room; the
// document outlives the connection, phones reconnect all the time.
func RoomWSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/room/ws/")
		if code == "" || strings.Contains(code, "/") {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"monopoly"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "monopoly" {
			c.Close(BadSubprotocolError, "client must speak the monopoly subprotocol")
			return
		}

		if _, err := s.Rooms.GetRoom(r.Context(), code); err != nil {
			c.Close(InvalidRoomCodeError, "room does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &roomConn{
			UserID:  userID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 10),
		}

		updates, err := s.Rooms.Watch(ctx, code)
		if err != nil {
			s.Log.WithError(err).WithField("room", code).Warn("room subscription failed")
			c.Close(websocket.StatusInternalError, "subscription failed")
			return
		}

		s.Log.WithFields(logrus.Fields{"room": code, "user": userID, "remote": r.RemoteAddr}).Info("client subscribed to room")

		go watchPump(ctx, conn, updates)
		go writePump(ctx, c, conn, s.Log)
		readPump(ctx, c, s, code, conn)

		s.Log.WithFields(logrus.Fields{"room": code, "user": userID}).Info("client left room stream")
	}
}

// watchPump forwards store snapshots to the connection until the room is
// deleted or the context ends.
func watchPump(ctx context.Context, conn *roomConn, updates <-chan store.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Room == nil {
				conn.Write(map[string]interface{}{"type": "room_deleted"})
				conn.Cancel()
				return
			}
			conn.Write(map[string]interface{}{
				"type": "room_state",
				"room": u.Room,
			})
		}
	}
}

// readPump handles incoming intents until the connection drops.
func readPump(ctx context.Context, c *websocket.Conn, s *Server, code string, conn *roomConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure &&
				closeStatus != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				s.Log.Warnf("room %s: read error for user %s: %v", code, conn.UserID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("Invalid JSON format")
			continue
		}

		if done := handleRoomMessage(ctx, s, code, conn, packet); done {
			return
		}
	}
}

// handleRoomMessage dispatches one client intent. It returns true when the
// intent ends the session (the player left or the room was torn down).
func handleRoomMessage(ctx context.Context, s *Server, code string, conn *roomConn, packet map[string]interface{}) bool {
	action, _ := packet["type"].(string)

	switch action {
	case "join":
		name, _ := packet["name"].(string)
		avatar, _ := packet["profileImageResId"].(float64)
		if name == "" {
			conn.WriteError("A name is required to join")
			return false
		}
		_, err := s.Rooms.JoinRoom(ctx, code, room.Profile{ID: conn.UserID, Name: name, Avatar: int(avatar)})
		if err != nil {
			conn.WriteError(intentError(err))
		}

	case "start_game":
		if _, err := s.Rooms.StartGame(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
		}

	case "end_turn":
		if _, err := s.Rooms.EndTurn(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
		}

	case "transfer":
		to, amount, ok := transferArgs(packet)
		if !ok {
			conn.WriteError("A recipient and a positive amount are required")
			return false
		}
		if _, err := s.Rooms.Transfer(ctx, code, conn.UserID, to, amount); err != nil {
			conn.WriteError(intentError(err))
		}

	case "bank_transfer":
		to, amount, ok := transferArgs(packet)
		if !ok {
			conn.WriteError("A recipient and a positive amount are required")
			return false
		}
		if _, err := s.Rooms.BankTransfer(ctx, code, conn.UserID, to, amount); err != nil {
			conn.WriteError(intentError(err))
		}

	case "end_game":
		if _, err := s.Rooms.EndGame(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
		}

	case "leave":
		if _, err := s.Rooms.Leave(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
			return false
		}
		conn.Cancel()
		return true

	case "leave_finished":
		if _, err := s.Rooms.LeaveFinished(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
			return false
		}
		conn.Cancel()
		return true

	case "cancel_room":
		if err := s.Rooms.DeleteRoom(ctx, code, conn.UserID); err != nil {
			conn.WriteError(intentError(err))
			return false
		}
		conn.Cancel()
		return true

	default:
		conn.WriteError("Unknown action type: " + action)
	}
	return false
}

// transferArgs pulls the recipient and amount out of a transfer packet. The
// positive-amount check lives here at the action gate; the reducer itself
// does not validate funds or sign.
func transferArgs(packet map[string]interface{}) (string, int, bool) {
	to, _ := packet["toPlayerId"].(string)
	amount, _ := packet["amount"].(float64)
	if to == "" || amount <= 0 || amount != float64(int(amount)) {
		return "", 0, false
	}
	return to, int(amount), true
}

// intentError maps service errors to the messages shown on the phone.
func intentError(err error) string {
	switch {
	case errors.Is(err, room.ErrNotYourTurn):
		return "It's not your turn yet!"
	case errors.Is(err, room.ErrNotHost):
		return "Only the host can do that"
	case errors.Is(err, room.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, room.ErrNotInRoom):
		return "That player is not in the room"
	case errors.Is(err, room.ErrAlreadyStarted):
		return "The game has already started"
	case errors.Is(err, room.ErrNotStarted):
		return "The game has not started yet"
	case errors.Is(err, room.ErrNotFinished):
		return "The game is still going"
	case errors.Is(err, store.ErrNotFound):
		return "Room not found"
	case errors.Is(err, store.ErrConflict):
		return "The room is busy, try again"
	default:
		return "Something went wrong, try again"
	}
}

// writePump drains the out channel to the socket and keeps the connection
// alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *roomConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("room ws: failed to marshal outgoing msg for user %s: %v", conn.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("room ws: failed to write to websocket for user %s: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("room ws: ping to user %s failed, assuming disconnect: %v", conn.UserID, err)
				return
			}
		}
	}
}
