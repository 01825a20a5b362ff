package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "docuchat/internal/app"
	"docuchat/internal/bootstrap"
	"docuchat/internal/cache"
	"docuchat/internal/platform/rabbitmq"
	"docuchat/internal/repository"
	"docuchat/internal/transport/http/handler"
	"docuchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	docRepo := repository.NewDocumentRepository(app.MySQL)
	eventRepo := repository.NewActivityEventRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	eventPublisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.EventQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		app.Bedrock,
		app.VectorIndex,
		app.Bedrock,
		historyCache,
		eventPublisher,
		app.Config.Chat.RetrievalTopK,
	)
	ingestService := appsvc.NewIngestService(
		docRepo,
		app.Bedrock,
		app.VectorIndex,
		app.BlobStore,
		eventPublisher,
		app.Config.Chat.ChunkSize,
		app.Config.Chat.ChunkOverlap,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, app.Config.Chat.DefaultSystemPrompt)
	documentHandler := handler.NewDocumentHandler(ingestService)
	activityHandler := handler.NewActivityHandler(eventRepo)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	chatGroup := authed.Group("/chat")
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:session_id", chatHandler.DeleteSession)
	chatGroup.GET("/sessions/:session_id/messages", chatHandler.GetHistory)
	chatGroup.POST("/messages", chatHandler.Converse)

	docGroup := authed.Group("/documents")
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:document_id/download-url", documentHandler.DownloadURL)

	authed.GET("/activity", activityHandler.List)

	return router
}
