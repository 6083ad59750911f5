// Package room holds the room document reducers and the service that runs
// them against the store. Every operation follows the same shape: transform
// the current snapshot into the next one and write it back wholesale.
package room

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/monopolymoney/moneyservice/internal/history"
	"github.com/monopolymoney/moneyservice/internal/models"
	"github.com/monopolymoney/moneyservice/internal/store"
)

// Profile is what the identity layer exposes to the room core: a stable
// opaque id plus the display fields a Player entry is built from.
type Profile struct {
	ID     string
	Name   string
	Avatar int
}

// Config tunes per-room rules.
type Config struct {
	// MaxPlayers caps the player map on join; 0 means no cap. Early builds of
	// the app capped rooms at 4 and later ones did not, so the cap is a knob
	// rather than a rule.
	MaxPlayers int
}

// Service owns the room operations. Construct it once and hand it to the
// transport layer; it carries no per-session state, so one value serves every
// connection.
type Service struct {
	store store.RoomStore
	hist  *history.Publisher
	log   *logrus.Logger
	cfg   Config
}

func NewService(st store.RoomStore, hist *history.Publisher, logger *logrus.Logger, cfg Config) *Service {
	return &Service{store: st, hist: hist, log: logger, cfg: cfg}
}

// CreateRoom claims a fresh code, writes the initial document with the
// creator as host, and returns it.
func (s *Service) CreateRoom(ctx context.Context, host Profile) (*models.GameRoom, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		room := &models.GameRoom{
			Code:   code,
			HostID: host.ID,
			Status: models.StatusWaiting,
			Players: map[string]models.Player{
				host.ID: {
					ID:      host.ID,
					Name:    host.Name,
					Avatar:  host.Avatar,
					Balance: models.StartingBalance,
					IsHost:  true,
				},
			},
			TurnOrder: []string{host.ID},
			Events:    models.EventLog{},
		}
		err = s.store.Create(ctx, room)
		if errors.Is(err, store.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"room": code, "host": host.ID}).Info("room created")
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// JoinRoom adds the player to an existing room at the starting balance.
func (s *Service) JoinRoom(ctx context.Context, code string, p Profile) (*models.GameRoom, error) {
	joined, err := s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if _, ok := r.Players[p.ID]; ok {
			return r, nil // rejoining is a no-op, keep the existing balance
		}
		if s.cfg.MaxPlayers > 0 && len(r.Players) >= s.cfg.MaxPlayers {
			return nil, ErrRoomFull
		}
		addPlayer(r, models.Player{ID: p.ID, Name: p.Name, Avatar: p.Avatar})
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"room": code, "player": p.ID}).Info("player joined")
	return joined, nil
}

// StartGame moves the room to STARTED. Host only; the first player in join
// order takes the turn.
func (s *Service) StartGame(ctx context.Context, code, callerID string) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if r.HostID != callerID {
			return nil, ErrNotHost
		}
		if r.Status != models.StatusWaiting {
			return nil, ErrAlreadyStarted
		}
		startGame(r)
		return r, nil
	})
}

// EndTurn passes the turn to the next player in join order, wrapping to the
// caller themselves when nobody else remains.
func (s *Service) EndTurn(ctx context.Context, code, callerID string) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if r.Status != models.StatusStarted {
			return nil, ErrNotStarted
		}
		if r.CurrentPlayerID != callerID {
			return nil, ErrNotYourTurn
		}
		advanceTurn(r)
		return r, nil
	})
}

// Transfer moves amount from the caller to another player. Peer-to-peer
// transfers conserve the room's total; balances may go negative, the reducer
// does not check funds.
func (s *Service) Transfer(ctx context.Context, code, callerID, toID string, amount int) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if _, ok := r.Players[callerID]; !ok {
			return nil, ErrNotInRoom
		}
		if _, ok := r.Players[toID]; !ok {
			return nil, ErrNotInRoom
		}
		applyTransfer(r, callerID, toID, amount)
		return r, nil
	})
}

// BankTransfer credits a player from the bank. Host only; no debit happens
// anywhere, the money enters the economy from outside.
func (s *Service) BankTransfer(ctx context.Context, code, callerID, toID string, amount int) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if r.HostID != callerID {
			return nil, ErrNotHost
		}
		if _, ok := r.Players[toID]; !ok {
			return nil, ErrNotInRoom
		}
		applyTransfer(r, models.BankPlayerID, toID, amount)
		return r, nil
	})
}

// Leave removes the player. The last player out takes the room with them; a
// departing host hands the flag to the first remaining player in join order.
// The returned room is nil when the room was deleted.
func (s *Service) Leave(ctx context.Context, code, playerID string) (*models.GameRoom, error) {
	next, err := s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if _, ok := r.Players[playerID]; !ok {
			return nil, ErrNotInRoom
		}
		if empty := removePlayer(r, playerID); empty {
			return nil, nil // delete the document
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if next == nil {
		s.log.WithField("room", code).Info("room deleted, last player left")
	}
	return next, nil
}

// EndGame moves the room to FINISHED, snapshotting every final balance into
// the log. Host only. The game-over presentation is client-local state and is
// not persisted here.
func (s *Service) EndGame(ctx context.Context, code, callerID string) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if r.HostID != callerID {
			return nil, ErrNotHost
		}
		if r.Status != models.StatusStarted {
			return nil, ErrNotStarted
		}
		endGame(r)
		return r, nil
	})
}

// LeaveFinished removes a player from a finished room, deleting the document
// once the last one has left the game-over screen.
func (s *Service) LeaveFinished(ctx context.Context, code, playerID string) (*models.GameRoom, error) {
	return s.transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		if r.Status != models.StatusFinished {
			return nil, ErrNotFinished
		}
		if _, ok := r.Players[playerID]; !ok {
			return nil, ErrNotInRoom
		}
		delete(r.Players, playerID)
		r.TurnOrder = removeFromOrder(r.TurnOrder, playerID)
		if len(r.Players) == 0 {
			return nil, nil
		}
		return r, nil
	})
}

// DeleteRoom is the host cancelling before start: the document goes away
// outright, no events recorded.
func (s *Service) DeleteRoom(ctx context.Context, code, callerID string) error {
	room, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}
	if room.HostID != callerID {
		return ErrNotHost
	}
	return s.store.Delete(ctx, code)
}

// GetRoom is a one-shot snapshot read, used to validate a code before
// subscribing.
func (s *Service) GetRoom(ctx context.Context, code string) (*models.GameRoom, error) {
	return s.store.Get(ctx, code)
}

// Watch subscribes to a room's snapshot stream.
func (s *Service) Watch(ctx context.Context, code string) (<-chan store.Update, error) {
	return s.store.Watch(ctx, code)
}

// transform runs fn through the store and archives whatever events it
// appended. Archiving is fire-and-forget; a dead queue only costs history.
func (s *Service) transform(ctx context.Context, code string, fn store.TransformFunc) (*models.GameRoom, error) {
	var before int
	next, err := s.store.Transform(ctx, code, func(r *models.GameRoom) (*models.GameRoom, error) {
		before = len(r.Events)
		return fn(r)
	})
	if err != nil {
		return nil, err
	}
	if next != nil {
		for _, ev := range next.Events[before:] {
			if perr := s.hist.Publish(ctx, code, ev); perr != nil {
				s.log.WithError(perr).WithField("room", code).Warn("failed to archive room event")
			}
		}
	}
	return next, nil
}
