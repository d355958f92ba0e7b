package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mentorgrid/conversations/internal/conversation"
	"github.com/mentorgrid/conversations/internal/data"
	"github.com/mentorgrid/conversations/internal/db"
	"github.com/mentorgrid/conversations/internal/feed"
	"github.com/mentorgrid/conversations/internal/middleware"
	"github.com/mentorgrid/conversations/internal/projector"
)

func main() {
	// Read configuration from the environment, with .env as a convenience for
	// local development.
	_ = godotenv.Load()

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Fatal("MONGODB_URI must be set")
	}
	database := os.Getenv("MONGODB_DATABASE")
	if database == "" {
		database = "conversations"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()

	dbClient, err := db.New(ctx, mongoURI, database)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Wire the conversation core: stores over the collections, the change
	// feed, projectors on top, the facade in front.
	broker := feed.NewBroker()
	threads := data.NewThreadStore(dbClient.ThreadsCollection())
	msgs := data.NewMessageLog(dbClient.MessagesCollection(), threads)
	threadViews := projector.NewThreadListProjector(threads, broker)
	msgViews := projector.NewMessageListProjector(msgs, broker)
	svc := conversation.New(threads, msgs, threadViews, msgViews, broker)

	// With change streams enabled, writes from other API processes reach this
	// one's subscribers too. Needs a replica-set MongoDB.
	tailCtx, cancelTail := context.WithCancel(ctx)
	defer cancelTail()
	if os.Getenv("CHANGE_STREAMS") == "true" {
		tailer := feed.NewTailer(dbClient.ThreadsCollection(), dbClient.MessagesCollection(), broker)
		go func() {
			if err := tailer.Run(tailCtx); err != nil {
				log.Printf("change stream tailer exit: %v", err)
			}
		}()
	}

	// RATE_LIMIT_RPM controls requests per minute for the write endpoints.
	rateRPM := 60
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateRPM = n
		}
	}
	limiterStore := middleware.NewLimiterStore(rateRPM, 5, time.Minute)
	defer limiterStore.Stop()

	router := newRouter(svc, limiterStore)
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Printf("conversation api listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
