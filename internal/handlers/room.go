// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/monopolymoney/moneyservice/internal/room"
	"github.com/monopolymoney/moneyservice/internal/store"
)

// CreateRoomHandler creates a room with the caller as host. The display name
// and avatar travel in the request; the id comes from the session token.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		var req struct {
			Name   string `json:"name"`
			Avatar int    `json:"profileImageResId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "name must not be empty", http.StatusBadRequest)
			return
		}

		created, err := s.Rooms.CreateRoom(r.Context(), room.Profile{
			ID:     userID,
			Name:   req.Name,
			Avatar: req.Avatar,
		})
		if errors.Is(err, room.ErrCodeSpaceExhausted) {
			http.Error(w, "no room codes available", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			s.Log.WithError(err).Warn("room creation failed")
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(created)
	}
}

// GetRoomHandler returns a one-shot snapshot, the read a client does to
// validate a code before joining.
func GetRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := requireUserID(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		code := strings.TrimPrefix(r.URL.Path, "/room/")
		if code == "" || strings.Contains(code, "/") {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		snapshot, err := s.Rooms.GetRoom(r.Context(), code)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.Log.WithError(err).WithField("room", code).Warn("room read failed")
			http.Error(w, "failed to read room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot)
	}
}
