package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"

	"github.com/forumkit/chattrack/internal/cache"
	"github.com/forumkit/chattrack/internal/config"
	"github.com/forumkit/chattrack/internal/events"
	"github.com/forumkit/chattrack/internal/handlers"
	"github.com/forumkit/chattrack/internal/httpx"
	"github.com/forumkit/chattrack/internal/middleware"
	"github.com/forumkit/chattrack/internal/repository"
	"github.com/forumkit/chattrack/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is required")
	}

	app := fiber.New(fiber.Config{
		AppName: "chattrack",
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	db, err := repository.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	repos := repository.NewRepos(db)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsed
		}
	}

	publisher := events.NewRedisPublisher(redisAddr, redisPassword, redisDB)
	if err := publisher.Ping(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}

	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis cache connection failed: %v. @here falls back to stored last-seen.", err)
		redisCache = nil
	}
	presence := cache.NewPresenceCache(redisCache)

	mentionCfg := config.MentionsFromEnv()

	resolver := service.NewMentionResolver(presence)
	notifier := service.NewNotifier(publisher)
	tracker := service.NewTracker(repos, publisher)
	messageService := service.NewMessageService(repos, resolver, notifier, tracker, publisher, mentionCfg)

	messageHandler := handlers.NewMessageHandler(messageService)
	trackingHandler := handlers.NewTrackingHandler(tracker)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.AuthRequired())
	api.Use(func(c *fiber.Ctx) error {
		if userID, err := httpx.LocalUint(c, "userID"); err == nil {
			presence.Touch(userID, time.Now())
		}
		return c.Next()
	})
	api.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	api.Post("/channels/:id/messages", messageHandler.CreateMessage)
	api.Put("/messages/:id", messageHandler.EditMessage)
	api.Delete("/messages/:id", messageHandler.TrashMessage)
	api.Post("/messages/:id/restore", messageHandler.RestoreMessage)
	api.Post("/messages/move", messageHandler.MoveMessages)

	api.Put("/channels/:id/read/:message_id", trackingHandler.AdvanceChannelCursor)
	api.Put("/threads/:id/read/:message_id", trackingHandler.AdvanceThreadCursor)
	api.Put("/read", trackingHandler.MarkAllRead)
	api.Get("/channels/:id/unread", trackingHandler.ChannelUnread)
	api.Get("/channels/:id/threads/unread", trackingHandler.ThreadOverview)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Fatal(app.Listen(":" + port))
}
