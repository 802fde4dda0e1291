package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ripplehq/ripple/internal/config"
	"github.com/ripplehq/ripple/internal/handler"
	"github.com/ripplehq/ripple/internal/middleware"
	"github.com/ripplehq/ripple/internal/model"
	"github.com/ripplehq/ripple/internal/repository"
	"github.com/ripplehq/ripple/internal/service"
	"github.com/ripplehq/ripple/internal/ws"
	"github.com/ripplehq/ripple/migrations"
	"github.com/ripplehq/ripple/pkg/auth"
	"github.com/ripplehq/ripple/pkg/logger"
	"github.com/ripplehq/ripple/pkg/notification"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           Ripple Messaging API
// @version         1.0
// @description     Realtime conversation and messaging service with WebSocket delivery, presence and Redis Pub/Sub fan-out.

// @contact.name   API Support
// @contact.email  support@ripple.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()

	zlog, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Infow("starting ripple messaging server", "env", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.Env == "production" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		zlog.Fatalw("failed to connect to database", "error", err)
	}
	zlog.Infow("connected to postgres")

	// ==================== Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		zlog.Warnw("migration failed, falling back to automigrate", "error", err)
		if err := db.AutoMigrate(
			&model.Conversation{},
			&model.ConversationMember{},
			&model.Message{},
			&model.Attachment{},
			&model.MessageReaction{},
			&model.ReadReceipt{},
			&model.UserDevice{},
		); err != nil {
			zlog.Fatalw("failed to migrate database", "error", err)
		}
	}
	zlog.Infow("database migrated")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		zlog.Fatalw("failed to connect to redis", "error", err)
	}
	zlog.Infow("connected to redis")

	// ==================== Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)

	chatService := service.NewChatService(convRepo, msgRepo, zlog)

	pushService, err := notification.NewPushService(cfg.FCM.CredentialsFile, deviceRepo, zlog)
	if err != nil {
		zlog.Warnw("push notifications unavailable", "error", err)
	}

	presence := ws.NewMemoryPresence()
	limiter := ws.NewCooldownLimiter(cfg.Chat.SendCooldown)

	// Hub with Redis Pub/Sub for horizontal scaling
	hub := ws.NewHub(presence, rdb, zlog)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	chatHandler := handler.NewChatHandler(chatService, hub)
	wsHandler := handler.NewWSHandler(hub, chatService, jwtManager, limiter, pushService, zlog)
	deviceHandler := handler.NewDeviceHandler(deviceRepo, zlog)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "ripple-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	sendLimiter := middleware.NewRateLimiter(rdb, "ratelimit:send", cfg.Chat.HTTPRateLimit, cfg.Chat.HTTPRateWindow)
	byUser := func(c *gin.Context) string {
		if id, ok := c.Get("user_id"); ok {
			return id.(uuid.UUID).String()
		}
		return c.ClientIP()
	}

	api := router.Group("/api/v1")
	{
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, rdb))
		{
			// Conversations
			protected.GET("/conversations", chatHandler.GetConversations)
			protected.POST("/conversations", chatHandler.CreateConversation)
			protected.GET("/conversations/:id", chatHandler.GetConversation)
			protected.DELETE("/conversations/:id", chatHandler.DeleteConversation)
			protected.PATCH("/conversations/:id/name", chatHandler.RenameConversation)
			protected.PATCH("/conversations/:id/participants", chatHandler.UpdateParticipants)
			protected.POST("/conversations/:id/flags/:flag", chatHandler.ToggleFlag)

			// Messages
			protected.GET("/conversations/:id/messages", chatHandler.GetMessages)
			protected.POST("/conversations/:id/messages", sendLimiter.MiddlewareByKey(byUser), chatHandler.SendMessage)
			protected.POST("/conversations/:id/read", chatHandler.MarkAsRead)
			protected.PATCH("/messages/:id", chatHandler.EditMessage)
			protected.DELETE("/messages/:id", chatHandler.DeleteMessage)
			protected.DELETE("/messages/:id/unsend", chatHandler.UnsendMessage)
			protected.PUT("/messages/:id/reactions", chatHandler.SetReaction)
			protected.DELETE("/messages/:id/reactions", chatHandler.RemoveReaction)

			// Devices
			protected.POST("/devices", deviceHandler.RegisterDevice)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("server failed", "error", err)
		}
	}()

	zlog.Infow("server listening", "port", cfg.App.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Infow("shutting down server")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatalw("server forced to shutdown", "error", err)
	}

	hubCancel()
	zlog.Infow("server exited")
}
