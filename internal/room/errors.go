package room

import "errors"

var (
	// ErrRoomFull is returned by Join when a player cap is configured and met.
	ErrRoomFull = errors.New("room is full")
	// ErrNotHost guards the host-only operations (start, bank transfer, end
	// game, cancel room).
	ErrNotHost = errors.New("only the host can do that")
	// ErrNotYourTurn is returned when a player ends a turn they do not hold.
	ErrNotYourTurn = errors.New("it's not your turn yet")
	// ErrNotInRoom means the acting player has no entry in the player map.
	ErrNotInRoom = errors.New("player is not in the room")
	// ErrAlreadyStarted rejects a second start on a running game.
	ErrAlreadyStarted = errors.New("game already started")
	// ErrNotStarted rejects turn and end-game actions before the game starts.
	ErrNotStarted = errors.New("game has not started")
	// ErrNotFinished rejects post-game departures while the game is live; a
	// live departure goes through Leave so host and turn migrate.
	ErrNotFinished = errors.New("game has not finished")
	// ErrCodeSpaceExhausted means code generation gave up after the maximum
	// number of collisions.
	ErrCodeSpaceExhausted = errors.New("could not find a free room code")
)
