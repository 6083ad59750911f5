package models

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates the members of the GameEvent union on the wire.
type EventType string

const (
	EventTransaction  EventType = "TRANSACTION"
	EventPlayerJoined EventType = "PLAYER_JOINED"
	EventPlayerLeft   EventType = "PLAYER_LEFT"
	EventGameEnded    EventType = "GAME_ENDED"
)

// GameEvent is one entry of a room's append-only log. Concrete types are
// TransactionEvent, PlayerJoinedEvent, PlayerLeftEvent and GameEndedEvent.
// Event ids are sequence numbers derived from the log length at append time;
// appends run under the store's check-and-set, so ids stay dense and unique
// per room.
type GameEvent interface {
	EventID() int
	EventType() EventType
}

// TransactionEvent records a balance movement. A FromPlayerID of
// BankPlayerID marks a bank credit with no paired debit.
type TransactionEvent struct {
	ID           int    `json:"id"`
	FromPlayerID string `json:"fromPlayerId"`
	ToPlayerID   string `json:"toPlayerId"`
	Amount       int    `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
}

func (e TransactionEvent) EventID() int         { return e.ID }
func (e TransactionEvent) EventType() EventType { return EventTransaction }

// PlayerJoinedEvent is appended when a player enters a room whose game has
// already started; pre-start joins are visible from the player map alone.
type PlayerJoinedEvent struct {
	ID         int    `json:"id"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Avatar     int    `json:"profileImageResId"`
	Timestamp  int64  `json:"timestamp"`
}

func (e PlayerJoinedEvent) EventID() int         { return e.ID }
func (e PlayerJoinedEvent) EventType() EventType { return EventPlayerJoined }

// PlayerLeftEvent records a departure. NewHostID is set only when the
// departing player held the host flag and another player inherited it.
type PlayerLeftEvent struct {
	ID         int    `json:"id"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Avatar     int    `json:"profileImageResId"`
	WasHost    bool   `json:"wasHost"`
	NewHostID  string `json:"newHostId,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func (e PlayerLeftEvent) EventID() int         { return e.ID }
func (e PlayerLeftEvent) EventType() EventType { return EventPlayerLeft }

// GameEndedEvent snapshots every player's balance at the moment the host
// ended the game.
type GameEndedEvent struct {
	ID            int            `json:"id"`
	FinalBalances map[string]int `json:"finalBalances"`
	Timestamp     int64          `json:"timestamp"`
}

func (e GameEndedEvent) EventID() int         { return e.ID }
func (e GameEndedEvent) EventType() EventType { return EventGameEnded }

// EventLog is the ordered, append-only event list of a room. It marshals each
// entry as a JSON object carrying a "type" discriminator next to the event's
// own fields, and decodes by matching the discriminator exhaustively.
type EventLog []GameEvent

func (l EventLog) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, ev := range l {
		body, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		// splice the discriminator into the event's own object
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		fields["type"], _ = json.Marshal(ev.EventType())
		tagged, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, tagged)
	}
	return json.Marshal(out)
}

func (l *EventLog) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	events := make(EventLog, 0, len(raw))
	for _, entry := range raw {
		ev, err := decodeEvent(entry)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}
	*l = events
	return nil
}

func decodeEvent(data []byte) (GameEvent, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case EventTransaction:
		var ev TransactionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPlayerJoined:
		var ev PlayerJoinedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventPlayerLeft:
		var ev PlayerLeftEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventGameEnded:
		var ev GameEndedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown game event type %q", head.Type)
	}
}
