package store

import (
	"context"
	"log"
	"sync"

	"github.com/monopolymoney/moneyservice/internal/models"
)

// MemoryStore is a single-process RoomStore. It backs tests and the
// STORE_BACKEND=memory dev mode; semantics mirror the Redis store, with the
// mutex standing in for the check-and-set.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    map[string]*models.GameRoom
	watchers map[string][]chan Update
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*models.GameRoom),
		watchers: make(map[string][]chan Update),
	}
}

func (s *MemoryStore) Create(ctx context.Context, room *models.GameRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.Code]; exists {
		return ErrCodeTaken
	}
	s.rooms[room.Code] = room.Clone()
	s.notifyLocked(room.Code, room.Clone())
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*models.GameRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, room *models.GameRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.Code] = room.Clone()
	s.notifyLocked(room.Code, room.Clone())
	return nil
}

func (s *MemoryStore) Transform(ctx context.Context, code string, fn TransformFunc) (*models.GameRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(room.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(s.rooms, code)
		s.notifyLocked(code, nil)
		return nil, nil
	}
	s.rooms[code] = next.Clone()
	s.notifyLocked(code, next.Clone())
	return next, nil
}

func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	s.notifyLocked(code, nil)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, code string) (<-chan Update, error) {
	s.mu.Lock()
	ch := make(chan Update, 8)
	s.watchers[code] = append(s.watchers[code], ch)
	var initial *models.GameRoom
	if room, ok := s.rooms[code]; ok {
		initial = room.Clone()
	}
	s.mu.Unlock()

	ch <- Update{Room: initial}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.watchers[code]
		for i, w := range list {
			if w == ch {
				s.watchers[code] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// notifyLocked fans an update out to the room's watchers. Sends are
// non-blocking; a watcher that stopped draining loses updates rather than
// stalling writers. A nil room is the delete notification and ends every
// subscription, so a room recreated under the same code starts with a clean
// watcher list.
func (s *MemoryStore) notifyLocked(code string, room *models.GameRoom) {
	for _, ch := range s.watchers[code] {
		select {
		case ch <- Update{Room: room}:
		default:
			log.Printf("MemoryStore WARNING: watcher for room %s is full, dropping update.", code)
		}
	}
	if room == nil {
		for _, ch := range s.watchers[code] {
			close(ch)
		}
		delete(s.watchers, code)
	}
}
