// internal/handlers/server.go
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/monopolymoney/moneyservice/internal/room"
)

// Server bundles the room service and logger the handlers share. It is built
// once in main and injected into each handler constructor.
type Server struct {
	Rooms *room.Service
	Log   *logrus.Logger
}

func NewServer(rooms *room.Service, logger *logrus.Logger) *Server {
	return &Server{Rooms: rooms, Log: logger}
}
