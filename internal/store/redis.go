package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/monopolymoney/moneyservice/internal/models"
)

// deletedPayload is published on a room's channel when the document is
// removed, so watchers can distinguish deletion from a decode failure.
const deletedPayload = "__deleted__"

// maxTransformRetries bounds the optimistic check-and-set loop. Contention on
// one room document is a handful of phones, so losing this many rounds in a
// row means something is wrong.
const maxTransformRetries = 8

// RedisStore keeps each room as a JSON document at rooms:{code} and publishes
// the full document on rooms:events:{code} after every successful write.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// ConnectRedis builds a client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func roomKey(code string) string { return "rooms:" + code }
func roomChannel(code string) string { return "rooms:events:" + code }

func (s *RedisStore) Create(ctx context.Context, room *models.GameRoom) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", room.Code, err)
	}
	ok, err := s.rdb.SetNX(ctx, roomKey(room.Code), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.Code, err)
	}
	if !ok {
		return ErrCodeTaken
	}
	if err := s.rdb.Publish(ctx, roomChannel(room.Code), data).Err(); err != nil {
		log.Warnf("store: publish after create of room %s failed: %v", room.Code, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, code string) (*models.GameRoom, error) {
	data, err := s.rdb.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read room %s: %w", code, err)
	}
	return decodeRoom(code, data)
}

func (s *RedisStore) Put(ctx context.Context, room *models.GameRoom) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", room.Code, err)
	}
	if err := s.rdb.Set(ctx, roomKey(room.Code), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write room %s: %w", room.Code, err)
	}
	if err := s.rdb.Publish(ctx, roomChannel(room.Code), data).Err(); err != nil {
		log.Warnf("store: publish after write of room %s failed: %v", room.Code, err)
	}
	return nil
}

func (s *RedisStore) Transform(ctx context.Context, code string, fn TransformFunc) (*models.GameRoom, error) {
	key := roomKey(code)
	var result *models.GameRoom

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read room %s: %w", code, err)
		}
		room, err := decodeRoom(code, data)
		if err != nil {
			return err
		}

		next, err := fn(room)
		if err != nil {
			return err
		}
		result = next

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				pipe.Publish(ctx, roomChannel(code), deletedPayload)
				return nil
			}
			out, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal room %s: %w", code, err)
			}
			pipe.Set(ctx, key, out, 0)
			pipe.Publish(ctx, roomChannel(code), out)
			return nil
		})
		return err
	}

	for i := 0; i < maxTransformRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, re-read and retry
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConflict
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	if err := s.rdb.Del(ctx, roomKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", code, err)
	}
	if err := s.rdb.Publish(ctx, roomChannel(code), deletedPayload).Err(); err != nil {
		log.Warnf("store: publish after delete of room %s failed: %v", code, err)
	}
	return nil
}

// Watch subscribes before the initial read so no write can fall between the
// snapshot and the stream.
func (s *RedisStore) Watch(ctx context.Context, code string) (<-chan Update, error) {
	sub := s.rdb.Subscribe(ctx, roomChannel(code))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", code, err)
	}

	out := make(chan Update, 8)
	go func() {
		defer close(out)
		defer sub.Close()

		room, err := s.Get(ctx, code)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Warnf("store: initial read for watch on room %s failed: %v", code, err)
			return
		}
		select {
		case out <- Update{Room: room}:
		case <-ctx.Done():
			return
		}

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == deletedPayload {
					select {
					case out <- Update{}:
					case <-ctx.Done():
					}
					return
				}
				next, err := decodeRoom(code, []byte(msg.Payload))
				if err != nil {
					log.Warnf("store: dropping bad update for room %s: %v", code, err)
					continue
				}
				select {
				case out <- Update{Room: next}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeRoom(code string, data []byte) (*models.GameRoom, error) {
	var room models.GameRoom
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room %s: %w", code, err)
	}
	return &room, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
