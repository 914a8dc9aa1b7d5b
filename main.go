package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"focuschat/internal/db"
	"focuschat/internal/handlers"
	"focuschat/internal/middleware"
	"focuschat/internal/observability"
	"focuschat/internal/ratelimit"
	"focuschat/internal/repositories"
	"focuschat/internal/telemetry"
	"focuschat/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	ctx := context.Background()
	shutdownTracing := observability.InitTracing(ctx, "focuschat")
	defer func() {
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		publisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("AMQP_EXCHANGE", "focuschat.events"))
		if err != nil {
			log.Printf("rabbitmq disabled: %v", err)
		} else {
			observability.SetPublisher(publisher)
			defer publisher.Close()
		}
	}

	var limiter *ratelimit.RedisLimiter
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter = ratelimit.NewRedisLimiter(redisClient, "focuschat:ratelimit:")
	} else {
		log.Println("redis not configured, send rate limiting disabled")
	}

	jwtSecret := getEnv("JWT_SECRET", "dev-secret")

	messageRepo := repositories.NewMessageRepo(database)
	banRepo := repositories.NewBanRepo(database)
	roleRepo := repositories.NewRoleRepo(database)

	hub := ws.NewHub()
	emitter := telemetry.NewAuditEmitter("audit_log.chat", "focuschat", getEnv("ENVIRONMENT", "dev"))

	messageHandler := handlers.NewMessageHandler(messageRepo, banRepo, limiter, hub, emitter)
	banHandler := handlers.NewBanHandler(banRepo, roleRepo, hub, emitter)
	channelWS := ws.NewChannelWebSocketHandler(hub, banRepo, jwtSecret)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("focuschat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(jwtSecret)

	router.GET("/channels/:channel_id/messages", authMiddleware, messageHandler.GetChannelMessages)
	router.POST("/channels/:channel_id/messages", authMiddleware, messageHandler.PostChannelMessage)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)

	router.POST("/bans", authMiddleware, banHandler.CreateBan)
	router.DELETE("/bans/:user_id", authMiddleware, banHandler.DeleteBan)
	router.GET("/bans/:user_id", authMiddleware, banHandler.GetBan)
	router.GET("/roles/:user_id", authMiddleware, banHandler.GetRole)

	router.GET("/ws/channels/:channel_id", channelWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, os.Getenv("DEBUG_ROUTES") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
