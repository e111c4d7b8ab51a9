package main

import (
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/rbutcher/fivedice/internal/auth"
	"github.com/rbutcher/fivedice/internal/cache"
	"github.com/rbutcher/fivedice/internal/database"
	"github.com/rbutcher/fivedice/internal/game"
	"github.com/rbutcher/fivedice/internal/handlers"
	"github.com/rbutcher/fivedice/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// The persistence sink and the action history queue are both optional:
	// a server without them plays fine, it just records nothing.
	var sink game.Sink
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		sink = database.Sink{}
	} else {
		logger.Warn("PG_HOST not set, finished games will not be recorded")
	}
	if err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, action history disabled: %v", err)
		cache.Rdb = nil
	}

	srv := handlers.NewGameServer(sink)

	// Sweep waiting rooms that everyone wandered away from.
	go srv.Lobbies.Sweep(30 * time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("/user/guest", handlers.GuestHandler)

	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/rooms/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))
	mux.Handle("/rooms/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
