package handlers

import "github.com/coder/websocket"

const (
	BadSubprotocolError websocket.StatusCode = 4000 + iota
	InvalidRoomCodeError
)
