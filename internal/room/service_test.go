package room

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monopolymoney/moneyservice/internal/models"
	"github.com/monopolymoney/moneyservice/internal/store"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewService(store.NewMemoryStore(), nil, logger, cfg)
}

var (
	ana   = Profile{ID: "u-ana", Name: "Ana", Avatar: 1}
	bruno = Profile{ID: "u-bruno", Name: "Bruno", Avatar: 2}
	carla = Profile{ID: "u-carla", Name: "Carla", Avatar: 3}
	diego = Profile{ID: "u-diego", Name: "Diego", Avatar: 4}
)

// setupRoom creates a room for ana and joins the given extra players.
func setupRoom(t *testing.T, svc *Service, extras ...Profile) *models.GameRoom {
	t.Helper()
	ctx := context.Background()
	created, err := svc.CreateRoom(ctx, ana)
	require.NoError(t, err)
	room := created
	for _, p := range extras {
		room, err = svc.JoinRoom(ctx, created.Code, p)
		require.NoError(t, err)
	}
	return room
}

func TestCreateRoom(t *testing.T) {
	svc := newTestService(t, Config{})
	room := setupRoom(t, svc)

	assert.Len(t, room.Code, 6)
	for _, c := range room.Code {
		assert.True(t, c >= '0' && c <= '9', "room code must be digits, got %q", room.Code)
	}
	assert.Equal(t, models.StatusWaiting, room.Status)
	assert.Equal(t, ana.ID, room.HostID)
	require.Len(t, room.Players, 1)
	host := room.Players[ana.ID]
	assert.True(t, host.IsHost)
	assert.Equal(t, models.StartingBalance, host.Balance)
	assert.Empty(t, room.Events)
}

func TestJoinRoom(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	require.Len(t, room.Players, 2)
	joined := room.Players[bruno.ID]
	assert.False(t, joined.IsHost)
	assert.Equal(t, models.StartingBalance, joined.Balance)
	assert.Empty(t, room.Events, "pre-start joins are not logged")

	_, err := svc.JoinRoom(ctx, "000000", carla)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJoinAfterStartIsLogged(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	after, err := svc.JoinRoom(ctx, room.Code, carla)
	require.NoError(t, err)
	require.Len(t, after.Events, 1)
	ev, ok := after.Events[0].(models.PlayerJoinedEvent)
	require.True(t, ok)
	assert.Equal(t, carla.ID, ev.PlayerID)
	assert.Equal(t, carla.Name, ev.PlayerName)
}

func TestJoinRoomCap(t *testing.T) {
	svc := newTestService(t, Config{MaxPlayers: 2})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	_, err := svc.JoinRoom(ctx, room.Code, carla)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestStartGame(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	_, err := svc.StartGame(ctx, room.Code, bruno.ID)
	assert.ErrorIs(t, err, ErrNotHost)

	started, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, started.Status)
	assert.Equal(t, ana.ID, started.CurrentPlayerID, "first player in join order takes the turn")

	_, err = svc.StartGame(ctx, room.Code, ana.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

// TestEndTurnCycle verifies that N end-turns (N = player count) return the
// turn to where it started.
func TestEndTurnCycle(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla)
	started, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	current := started.CurrentPlayerID
	origin := current
	order := []string{ana.ID, bruno.ID, carla.ID}
	for i := 0; i < len(order); i++ {
		next, err := svc.EndTurn(ctx, room.Code, current)
		require.NoError(t, err)
		assert.Equal(t, order[(i+1)%len(order)], next.CurrentPlayerID)
		current = next.CurrentPlayerID
	}
	assert.Equal(t, origin, current)
}

func TestEndTurnGuards(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	_, err := svc.EndTurn(ctx, room.Code, ana.ID)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	_, err = svc.EndTurn(ctx, room.Code, bruno.ID)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

// TestEndTurnSinglePlayer checks the wrap-to-self edge case.
func TestEndTurnSinglePlayer(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	next, err := svc.EndTurn(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, next.CurrentPlayerID)
}

// TestTransferConservation: peer-to-peer transfers conserve the pair's total;
// negative balances are allowed.
func TestTransferConservation(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	sumBefore := 2 * models.StartingBalance
	after, err := svc.Transfer(ctx, room.Code, ana.ID, bruno.ID, 2000)
	require.NoError(t, err)

	assert.Equal(t, models.StartingBalance-2000, after.Players[ana.ID].Balance, "no clamping, balance goes negative")
	assert.Equal(t, models.StartingBalance+2000, after.Players[bruno.ID].Balance)
	assert.Equal(t, sumBefore, after.Players[ana.ID].Balance+after.Players[bruno.ID].Balance)

	require.Len(t, after.Events, 1)
	ev, ok := after.Events[0].(models.TransactionEvent)
	require.True(t, ok)
	assert.Equal(t, 0, ev.ID)
	assert.Equal(t, ana.ID, ev.FromPlayerID)
	assert.Equal(t, bruno.ID, ev.ToPlayerID)
	assert.Equal(t, 2000, ev.Amount)
}

// TestBankTransfer: a bank credit strictly increases the target with no
// compensating debit anywhere in the room.
func TestBankTransfer(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	_, err = svc.BankTransfer(ctx, room.Code, bruno.ID, bruno.ID, 200)
	assert.ErrorIs(t, err, ErrNotHost)

	after, err := svc.BankTransfer(ctx, room.Code, ana.ID, bruno.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, models.StartingBalance+200, after.Players[bruno.ID].Balance)
	assert.Equal(t, models.StartingBalance, after.Players[ana.ID].Balance)

	total := 0
	for _, p := range after.Players {
		total += p.Balance
	}
	assert.Equal(t, 2*models.StartingBalance+200, total)

	ev, ok := after.Events[len(after.Events)-1].(models.TransactionEvent)
	require.True(t, ok)
	assert.Equal(t, models.BankPlayerID, ev.FromPlayerID)
}

// TestHostMigration: a departing host hands the flag to exactly one remaining
// player who did not have it before.
func TestHostMigration(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	after, err := svc.Leave(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	require.NotNil(t, after)

	hosts := 0
	for _, p := range after.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts, "exactly one host after migration")
	assert.Equal(t, bruno.ID, after.HostID, "first remaining player in join order inherits")
	assert.True(t, after.Players[bruno.ID].IsHost)
	assert.Equal(t, bruno.ID, after.CurrentPlayerID, "turn follows the departed holder")

	ev, ok := after.Events[len(after.Events)-1].(models.PlayerLeftEvent)
	require.True(t, ok)
	assert.True(t, ev.WasHost)
	assert.Equal(t, bruno.ID, ev.NewHostID)
	assert.Equal(t, ana.ID, ev.PlayerID)
}

// TestLeaveAllDeletesRoom: joining then leaving with every player deletes the
// document.
func TestLeaveAllDeletesRoom(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla, diego)

	for _, p := range []Profile{bruno, diego, ana} {
		next, err := svc.Leave(ctx, room.Code, p.ID)
		require.NoError(t, err)
		require.NotNil(t, next)
	}
	last, err := svc.Leave(ctx, room.Code, carla.ID)
	require.NoError(t, err)
	assert.Nil(t, last, "last leave deletes the room")

	_, err = svc.GetRoom(ctx, room.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestEndGameFinalBalances: the GAME_ENDED event captures exactly the players
// present at that moment, at their current balances.
func TestEndGameFinalBalances(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, room.Code, ana.ID, bruno.ID, 300)
	require.NoError(t, err)
	_, err = svc.Leave(ctx, room.Code, carla.ID)
	require.NoError(t, err)

	_, err = svc.EndGame(ctx, room.Code, bruno.ID)
	assert.ErrorIs(t, err, ErrNotHost)

	after, err := svc.EndGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, after.Status)

	ev, ok := after.Events[len(after.Events)-1].(models.GameEndedEvent)
	require.True(t, ok)
	require.Len(t, ev.FinalBalances, 2)
	assert.Equal(t, after.Players[ana.ID].Balance, ev.FinalBalances[ana.ID])
	assert.Equal(t, after.Players[bruno.ID].Balance, ev.FinalBalances[bruno.ID])
	_, present := ev.FinalBalances[carla.ID]
	assert.False(t, present, "players gone before end are not in the snapshot")
}

func TestLeaveFinished(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	_, err = svc.EndGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	next, err := svc.LeaveFinished(ctx, room.Code, bruno.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Len(t, next.Players, 1)

	last, err := svc.LeaveFinished(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
	_, err = svc.GetRoom(ctx, room.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestLeaveFinishedGuards: the post-game exit only works on a finished room,
// so a live room can never lose its host or turn holder without migration.
func TestLeaveFinishedGuards(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla)

	_, err := svc.LeaveFinished(ctx, room.Code, ana.ID)
	assert.ErrorIs(t, err, ErrNotFinished)

	_, err = svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	_, err = svc.LeaveFinished(ctx, room.Code, ana.ID)
	assert.ErrorIs(t, err, ErrNotFinished)

	after, err := svc.GetRoom(ctx, room.Code)
	require.NoError(t, err)
	hosts := 0
	for _, p := range after.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts, "the host seat survives rejected departures")
	assert.Contains(t, after.Players, after.HostID)
	assert.Contains(t, after.Players, after.CurrentPlayerID)

	_, err = svc.EndGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	_, err = svc.LeaveFinished(ctx, room.Code, diego.ID)
	assert.ErrorIs(t, err, ErrNotInRoom)

	next, err := svc.LeaveFinished(ctx, room.Code, ana.ID)
	require.NoError(t, err)
	assert.Len(t, next.Players, 2)
}

func TestDeleteRoom(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)

	err := svc.DeleteRoom(ctx, room.Code, bruno.ID)
	assert.ErrorIs(t, err, ErrNotHost)

	require.NoError(t, svc.DeleteRoom(ctx, room.Code, ana.ID))
	_, err = svc.GetRoom(ctx, room.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestEventIDsAreSequential: ids are dense sequence numbers derived from the
// log length at append time.
func TestEventIDsAreSequential(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno, carla)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, room.Code, ana.ID, bruno.ID, 50)
	require.NoError(t, err)
	_, err = svc.BankTransfer(ctx, room.Code, ana.ID, carla.ID, 100)
	require.NoError(t, err)
	after, err := svc.Leave(ctx, room.Code, carla.ID)
	require.NoError(t, err)

	require.Len(t, after.Events, 3)
	for i, ev := range after.Events {
		assert.Equal(t, i, ev.EventID())
	}
}

// TestReplayEventsReproducesBalances: running the event log forward from the
// starting balances lands on exactly the balances the GAME_ENDED snapshot
// recorded.
func TestReplayEventsReproducesBalances(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()
	room := setupRoom(t, svc, bruno)
	_, err := svc.StartGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, room.Code, carla)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, room.Code, ana.ID, bruno.ID, 450)
	require.NoError(t, err)
	_, err = svc.BankTransfer(ctx, room.Code, ana.ID, carla.ID, 200)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, room.Code, carla.ID, ana.ID, 75)
	require.NoError(t, err)

	after, err := svc.EndGame(ctx, room.Code, ana.ID)
	require.NoError(t, err)

	// pre-start players are seeded directly; everyone else enters via a
	// PLAYER_JOINED entry in the log
	replayed := map[string]int{
		ana.ID:   models.StartingBalance,
		bruno.ID: models.StartingBalance,
	}
	var snapshot map[string]int
	for _, ev := range after.Events {
		switch e := ev.(type) {
		case models.PlayerJoinedEvent:
			replayed[e.PlayerID] = models.StartingBalance
		case models.TransactionEvent:
			if e.FromPlayerID != models.BankPlayerID {
				replayed[e.FromPlayerID] -= e.Amount
			}
			replayed[e.ToPlayerID] += e.Amount
		case models.GameEndedEvent:
			snapshot = e.FinalBalances
		}
	}

	require.NotNil(t, snapshot)
	assert.Equal(t, replayed, snapshot)
}

// TestFullGameScenario is the end-to-end walkthrough: create, join, start,
// bank credit, host departure.
func TestFullGameScenario(t *testing.T) {
	svc := newTestService(t, Config{})
	ctx := context.Background()

	created, err := svc.CreateRoom(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, created.Status)
	assert.Len(t, created.Players, 1)
	assert.Equal(t, models.StartingBalance, created.Players[ana.ID].Balance)
	assert.True(t, created.Players[ana.ID].IsHost)

	joined, err := svc.JoinRoom(ctx, created.Code, bruno)
	require.NoError(t, err)
	assert.Len(t, joined.Players, 2)
	assert.Equal(t, models.StartingBalance, joined.Players[bruno.ID].Balance)
	assert.False(t, joined.Players[bruno.ID].IsHost)

	started, err := svc.StartGame(ctx, created.Code, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, started.Status)

	credited, err := svc.BankTransfer(ctx, created.Code, ana.ID, bruno.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, 1700, credited.Players[bruno.ID].Balance)
	require.Len(t, credited.Events, 1)
	tx := credited.Events[0].(models.TransactionEvent)
	assert.Equal(t, models.BankPlayerID, tx.FromPlayerID)
	assert.Equal(t, bruno.ID, tx.ToPlayerID)
	assert.Equal(t, 200, tx.Amount)

	final, err := svc.Leave(ctx, created.Code, ana.ID)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Len(t, final.Players, 1)
	assert.True(t, final.Players[bruno.ID].IsHost)
	assert.Equal(t, bruno.ID, final.HostID)
}
