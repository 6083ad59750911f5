package models

// RoomStatus tracks a room through its lifecycle. The only transitions are
// WAITING -> STARTED -> FINISHED; a room in any status disappears entirely
// when the last player leaves or the host cancels before start.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "WAITING"
	StatusStarted  RoomStatus = "STARTED"
	StatusFinished RoomStatus = "FINISHED"
)

// GameRoom is the whole unit of consistency: every mutation reads the full
// document, computes a replacement and writes it back as one value.
//
// Players is keyed by player id. TurnOrder carries the join order explicitly
// because turn rotation is cyclic over it; a Go map has no stable iteration
// order to lean on.
type GameRoom struct {
	Code            string            `json:"code"`
	HostID          string            `json:"hostId"`
	CurrentPlayerID string            `json:"currentPlayerId,omitempty"`
	Status          RoomStatus        `json:"status"`
	Players         map[string]Player `json:"players"`
	TurnOrder       []string          `json:"turnOrder"`
	Events          EventLog          `json:"gameEvents"`
}

// Clone returns an independent deep copy. Reducers mutate a clone and hand it
// to the store so a failed write never corrupts the snapshot it started from.
func (r *GameRoom) Clone() *GameRoom {
	next := &GameRoom{
		Code:            r.Code,
		HostID:          r.HostID,
		CurrentPlayerID: r.CurrentPlayerID,
		Status:          r.Status,
		Players:         make(map[string]Player, len(r.Players)),
		TurnOrder:       make([]string, len(r.TurnOrder)),
		Events:          make(EventLog, len(r.Events)),
	}
	for id, p := range r.Players {
		next.Players[id] = p
	}
	copy(next.TurnOrder, r.TurnOrder)
	copy(next.Events, r.Events)
	return next
}

// NextEventID returns the sequence number for the next appended event.
func (r *GameRoom) NextEventID() int { return len(r.Events) }

// Player returns the entry for id, if present.
func (r *GameRoom) Player(id string) (Player, bool) {
	p, ok := r.Players[id]
	return p, ok
}
