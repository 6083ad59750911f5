// cmd/historian/main.go is an asynchronous historian service that pops room
// events from a Redis queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/monopolymoney/moneyservice/internal/database"
	"github.com/monopolymoney/moneyservice/internal/history"
)

// HistorianService encapsulates the Redis + DB logic for capturing room
// events and retiring rooms that have gone quiet.
type HistorianService struct {
	redisClient *redis.Client
	queueName   string
	batchSize   int
	flushDelay  time.Duration
	inactivity  time.Duration

	lastActivity sync.Map // map[string]time.Time keyed by room code

	batchMu  sync.Mutex
	batch    []history.RoomEventRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() (*HistorianService, error) {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("ROOM_INACTIVITY_TIMEOUT_SEC", 3600)

	queueName := os.Getenv("HISTORIAN_QUEUE_NAME")
	if queueName == "" {
		queueName = history.DefaultQueueName
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		queueName:   queueName,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]history.RoomEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancelFn,
	}, nil
}

// Run starts the two main loops: draining the Redis queue into batched DB
// writes, and the periodic inactivity sweep.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("moneyservice-historian started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("moneyservice-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve records from the queue.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is noticed.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, hs.queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if hs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record history.RoomEventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid room event record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(record.RoomCode, time.Now())
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes when full.
func (hs *HistorianService) appendToBatch(record history.RoomEventRecord) {
	hs.batchMu.Lock()
	full := false
	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		full = true
	}
	hs.batchMu.Unlock()

	if full {
		hs.flushBatchToDB()
	}
}

// flushBatchToDB writes the current batch in a single transaction.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	batchCopy := make([]history.RoomEventRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoomEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoomEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d room events to DB.\n", len(batchCopy))
	}
}

// inactivityLoop closes out rooms that have not produced an event within the
// configured threshold.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				code, ok1 := key.(string)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markRoomAbandoned(code)
					hs.lastActivity.Delete(code)
				}
				return true
			})
		}
	}
}

// markRoomAbandoned stamps a room as abandoned if it never reached GAME_ENDED.
func (hs *HistorianService) markRoomAbandoned(code string) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE rooms
			SET status = 'abandoned', ended_at = NOW()
			WHERE code = $1 AND status = 'active'
		`
		_, e := tx.Exec(ctx, q, code)
		return e
	})
	if err != nil {
		log.Printf("failed to mark room %s abandoned: %v", code, err)
	} else {
		log.Printf("Marked room %s as 'abandoned' due to inactivity.", code)
	}
}

// insertRoomEventTx upserts the room row and appends one event. A GAME_ENDED
// record finalizes the room.
func insertRoomEventTx(ctx context.Context, tx pgx.Tx, rec history.RoomEventRecord) error {
	upsertRoomQ := `
		INSERT INTO rooms (code, status, started_at)
		VALUES ($1, 'active', NOW())
		ON CONFLICT (code)
		DO UPDATE SET status = 'active'
	`
	if _, err := tx.Exec(ctx, upsertRoomQ, rec.RoomCode); err != nil {
		return err
	}

	eventInsertQ := `
		INSERT INTO room_events (
			room_code, event_id, event_type, payload, queued_at
		) VALUES ($1, $2, $3, $4, to_timestamp($5 / 1000.0))
		ON CONFLICT (room_code, event_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, eventInsertQ,
		rec.RoomCode, rec.EventID, rec.EventType, []byte(rec.Payload), rec.QueuedAt,
	); err != nil {
		return err
	}

	if rec.EventType == "GAME_ENDED" {
		finalizeQ := `
			UPDATE rooms
			SET status = 'completed', ended_at = NOW()
			WHERE code = $1 AND status = 'active'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.RoomCode); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs, err := NewHistorianService()
	if err != nil {
		log.Fatalf("historian: %v", err)
	}
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
