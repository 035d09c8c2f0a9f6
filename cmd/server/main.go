package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	redisDriver "github.com/redis/go-redis/v9"

	"relaychat/internal/config"
	"relaychat/internal/events"
	"relaychat/internal/fanout"
	"relaychat/internal/handlers"
	appKafka "relaychat/internal/kafka"
	"relaychat/internal/presence"
	appRedis "relaychat/internal/redis"
	"relaychat/internal/services"
	"relaychat/internal/storage"
	ws "relaychat/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	log.Printf("%s %s starting", cfg.AppName, cfg.AppVersion)

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("could not initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database ready")

	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("could not connect to redis: %v", err)
	}
	blacklist := appRedis.NewRedisTokenBlacklist(redisClient)

	repos := storage.NewRepositories(db)
	txManager := storage.NewGormTxManager(db)

	producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("could not create kafka producer: %v", err)
	}
	defer producer.Close()
	notifQueue := appKafka.NewNotificationQueue(producer, cfg.Kafka)

	// The websocket hub is the transport, the presence hub tracks sessions
	// on top of it, and the fanout router consults presence to decide who
	// gets a live push and who gets a queued notification. The status sink
	// dispatches through the router, so it is installed after the router
	// exists.
	wsHub := ws.NewHub()
	presenceHub := presence.NewHub(wsHub, nil)
	router := fanout.NewRouter(presenceHub, wsHub, notifQueue)

	pairLocks := services.NewPairLocker()
	authService := services.NewAuthService(repos.Users, blacklist, cfg)
	userService := services.NewUserService(repos.Users)
	relationshipService := services.NewRelationshipService(repos, txManager, pairLocks)
	chatService := services.NewChatService(repos, txManager, pairLocks, router)
	messageService := services.NewMessageService(repos, chatService, router)
	presenceHub.SetSink(services.NewStatusBroadcaster(repos.Users, repos.Friendships, router))

	h := handlers.Handlers{
		Auth:         handlers.NewAuthHandler(authService, cfg.Auth, blacklist),
		User:         handlers.NewUserHandler(userService),
		Relationship: handlers.NewRelationshipHandler(relationshipService),
		Chat:         handlers.NewChatHandler(chatService),
		Message:      handlers.NewMessageHandler(messageService, chatService),
		WS:           handlers.NewWebSocketHandler(wsHub, presenceHub, chatService, cfg, blacklist),
	}
	muxRouter := handlers.NewRouter(h, cfg, blacklist)

	// Notification consumer: queued notifications for users who were not
	// live in the room are delivered to whatever sessions they have now.
	// A recipient with no sessions keeps the notification for the next
	// consumer in their group, i.e. none; offsets are committed either way
	// and the client re-syncs through paging.
	consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("could not create kafka consumer: %v", err)
	}
	defer consumer.Close()

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	go func() {
		deliver := func(ctx context.Context, n events.Notification) {
			for _, sessionID := range presenceHub.SessionsForUser(n.RecipientID) {
				if err := wsHub.EmitToSession(ctx, sessionID, events.EventNotification, n); err != nil {
					log.Printf("notification delivery to session %s: %v", sessionID, err)
				}
			}
		}
		topics := []string{cfg.Kafka.NotificationsTopic}
		err := consumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, appKafka.NotificationHandler(deliver))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	corsOptions := []gorillaHandlers.CORSOption{
		gorillaHandlers.AllowedOrigins(cfg.Server.CORS.AllowedOrigins),
		gorillaHandlers.AllowedMethods(cfg.Server.CORS.AllowedMethods),
		gorillaHandlers.AllowedHeaders(cfg.Server.CORS.AllowedHeaders),
		gorillaHandlers.MaxAge(cfg.Server.CORS.MaxAge),
	}
	if cfg.Server.CORS.AllowCredentials {
		corsOptions = append(corsOptions, gorillaHandlers.AllowCredentials())
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        gorillaHandlers.CORS(corsOptions...)(muxRouter),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutdown signal received")

	cancelConsumer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
