// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/monopolymoney/moneyservice/internal/auth"
	"github.com/monopolymoney/moneyservice/internal/database"
	"github.com/monopolymoney/moneyservice/internal/handlers"
	"github.com/monopolymoney/moneyservice/internal/history"
	"github.com/monopolymoney/moneyservice/internal/middleware"
	"github.com/monopolymoney/moneyservice/internal/room"
	"github.com/monopolymoney/moneyservice/internal/store"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	var (
		roomStore store.RoomStore
		hist      *history.Publisher
	)
	if os.Getenv("STORE_BACKEND") == "memory" {
		// Single-process mode for local development; no Redis, no historian.
		roomStore = store.NewMemoryStore()
		logger.Warn("using in-memory room store, rooms will not survive a restart")
	} else {
		rdb, err := store.ConnectRedis()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		roomStore = store.NewRedisStore(rdb)
		hist = history.NewPublisher(rdb)
	}

	maxPlayers := getEnvInt("ROOM_MAX_PLAYERS", 0)

	rooms := room.NewService(roomStore, hist, logger, room.Config{MaxPlayers: maxPlayers})
	srv := handlers.NewServer(rooms, logger)

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.Handle("/user/profile", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ProfileHandler,
	)))

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(srv),
	)))
	mux.Handle("/room/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GetRoomHandler(srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
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
