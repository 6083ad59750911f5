package models

// Player is one participant's entry in a room document. The whole struct is
// replaced together with the rest of the room on every write; balances are
// never patched in place.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int    `json:"balance"`
	Avatar  int    `json:"profileImageResId"`
	IsHost  bool   `json:"isHost"`
}

// StartingBalance is the seed balance every player receives on entry.
const StartingBalance = 1500

// BankPlayerID is the sentinel "from" id used for bank credits. The bank is
// an unlimited external source; no player entry ever carries this id.
const BankPlayerID = "-1"
