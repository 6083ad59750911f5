package room

import (
	"time"

	"github.com/monopolymoney/moneyservice/internal/models"
)

// The functions in this file are the reducers: each one takes a room snapshot
// the store handed it (already an independent copy) and edits it into the
// next snapshot. They never touch the store themselves; the service runs them
// inside a Transform so concurrent writers are serialized per room.

func nowMillis() int64 { return time.Now().UnixMilli() }

// addPlayer appends a non-host player at the starting balance. A join after
// the game has started also lands in the event log, so late arrivals show up
// in the history.
func addPlayer(r *models.GameRoom, p models.Player) {
	p.IsHost = false
	p.Balance = models.StartingBalance
	r.Players[p.ID] = p
	r.TurnOrder = append(r.TurnOrder, p.ID)

	if r.Status == models.StatusStarted {
		r.Events = append(r.Events, models.PlayerJoinedEvent{
			ID:         r.NextEventID(),
			PlayerID:   p.ID,
			PlayerName: p.Name,
			Avatar:     p.Avatar,
			Timestamp:  nowMillis(),
		})
	}
}

// startGame flips the room to STARTED and hands the turn to the first player
// in join order.
func startGame(r *models.GameRoom) {
	r.Status = models.StatusStarted
	if len(r.TurnOrder) > 0 {
		r.CurrentPlayerID = r.TurnOrder[0]
	}
}

// advanceTurn moves the turn pointer to the player cyclically after current.
// With a single player the turn wraps back to them.
func advanceTurn(r *models.GameRoom) {
	r.CurrentPlayerID = nextInOrder(r.TurnOrder, r.CurrentPlayerID)
}

// applyTransfer debits from and credits to, then logs the event. Balances are
// not clamped; a player can go negative. A from of BankPlayerID has no player
// entry, so only the credit happens and the room's total grows.
func applyTransfer(r *models.GameRoom, fromID, toID string, amount int) {
	if from, ok := r.Players[fromID]; ok {
		from.Balance -= amount
		r.Players[fromID] = from
	}
	if to, ok := r.Players[toID]; ok {
		to.Balance += amount
		r.Players[toID] = to
	}
	r.Events = append(r.Events, models.TransactionEvent{
		ID:           r.NextEventID(),
		FromPlayerID: fromID,
		ToPlayerID:   toID,
		Amount:       amount,
		Timestamp:    nowMillis(),
	})
}

// removePlayer takes a player out of the map and turn order, migrating the
// turn pointer and the host flag as needed. The caller decides what to do
// when the room empties; removePlayer only reports it.
func removePlayer(r *models.GameRoom, id string) (empty bool) {
	departing, ok := r.Players[id]
	if !ok {
		return len(r.Players) == 0
	}

	// resolve who inherits the turn before the order shrinks
	turnHeir := r.CurrentPlayerID
	if r.CurrentPlayerID == id {
		turnHeir = nextInOrder(r.TurnOrder, id)
		if turnHeir == id {
			turnHeir = "" // last player out, nobody left to take the turn
		}
	}

	delete(r.Players, id)
	r.TurnOrder = removeFromOrder(r.TurnOrder, id)

	if len(r.Players) == 0 {
		r.CurrentPlayerID = ""
		return true
	}
	r.CurrentPlayerID = turnHeir

	newHostID := ""
	if departing.IsHost {
		newHostID = r.TurnOrder[0]
		for pid, p := range r.Players {
			p.IsHost = pid == newHostID
			r.Players[pid] = p
		}
		r.HostID = newHostID
	}

	r.Events = append(r.Events, models.PlayerLeftEvent{
		ID:         r.NextEventID(),
		PlayerID:   departing.ID,
		PlayerName: departing.Name,
		Avatar:     departing.Avatar,
		WasHost:    departing.IsHost,
		NewHostID:  newHostID,
		Timestamp:  nowMillis(),
	})
	return false
}

// endGame freezes the room and snapshots every remaining balance.
func endGame(r *models.GameRoom) {
	finals := make(map[string]int, len(r.Players))
	for id, p := range r.Players {
		finals[id] = p.Balance
	}
	r.Status = models.StatusFinished
	r.Events = append(r.Events, models.GameEndedEvent{
		ID:            r.NextEventID(),
		FinalBalances: finals,
		Timestamp:     nowMillis(),
	})
}

// nextInOrder returns the id cyclically after current. If current is absent
// from the order (e.g. it just left), the first entry takes the turn.
func nextInOrder(order []string, current string) string {
	if len(order) == 0 {
		return ""
	}
	for i, id := range order {
		if id == current {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func removeFromOrder(order []string, id string) []string {
	out := order[:0]
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

