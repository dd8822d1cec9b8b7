package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/voxbridge/relay-service/internal/config"
	"github.com/voxbridge/relay-service/internal/handler"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Server wires the relay's router and handler manager together.
type Server struct {
	config         *config.RelayConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

func NewServer(cfg *config.RelayConfig) *Server {
	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	// Handler manager creates all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		logger.Base().Error("Failed to initialize handler manager", zap.Error(err))
		return nil
	}

	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// Start registers the bot platform webhook and serves HTTP.
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	s.handlerManager.RegisterTelegramWebhook(ctx)
	cancel()

	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

// LoadConfigFromEnv loads the relay configuration from environment
func LoadConfigFromEnv() *config.RelayConfig {
	return &config.RelayConfig{
		Port:   getEnvOrDefault("PORT", "8080"),
		LogEnv: getEnvOrDefault("LOG_ENV", ""),

		// Telegram configuration
		TelegramBotToken:   getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIBaseURL: getEnvOrDefault("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		WebhookURL:         getEnvOrDefault("WEBHOOK_URL", ""),

		// WhatsApp Business (Graph) configuration
		GraphBaseURL:          getEnvOrDefault("GRAPH_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:    getEnvOrDefault("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppPhoneNumberID: getEnvOrDefault("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnvOrDefault("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppVerifyToken:   getEnvOrDefault("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppSendRate:      getEnvAsFloatOrDefault("WHATSAPP_SEND_RATE", 0),

		// AI completion provider
		AIAPIKey:    getEnvOrDefault("AI_API_KEY", ""),
		AIBaseURL:   getEnvOrDefault("AI_BASE_URL", "https://api.x.ai/v1"),
		AIModel:     getEnvOrDefault("AI_MODEL", "grok-beta"),
		AIMaxTokens: getEnvAsIntOrDefault("AI_MAX_TOKENS", 150),

		// Speech synthesis provider
		ElevenLabsAPIKey:  getEnvOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL: getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),

		// Video call link minting
		JitsiDomain:    getEnvOrDefault("JITSI_DOMAIN", "meet.jit.si"),
		JitsiAppID:     getEnvOrDefault("JITSI_APP_ID", ""),
		JitsiAppSecret: getEnvOrDefault("JITSI_APP_SECRET", ""),

		// Alerting
		AlertWebhookURL:    getEnvOrDefault("ALERT_WEBHOOK_URL", ""),
		AlertPubSubProject: getEnvOrDefault("ALERT_PUBSUB_PROJECT", ""),
		AlertPubSubTopic:   getEnvOrDefault("ALERT_PUBSUB_TOPIC", ""),

		// Automation trigger secret
		TaskerSecret: getEnvOrDefault("TASKER_SECRET", ""),

		// Rate limiting
		RedisHost:              getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:              getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:          getEnvOrDefault("REDIS_PASSWORD", ""),
		RateLimitRequests:      getEnvAsIntOrDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: getEnvAsIntOrDefault("RATE_LIMIT_WINDOW_SECONDS", 60),

		// Call recordings
		RecordingsPath:       getEnvOrDefault("RECORDINGS_PATH", "./recordings"),
		RecordingStorageType: getEnvOrDefault("RECORDING_STORAGE_TYPE", "local"),
		RecordingGCSBucket:   getEnvOrDefault("RECORDING_GCS_BUCKET", ""),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault gets environment variable as float or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := LoadConfigFromEnv()

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("Failed to create server")
	}
	defer server.handlerManager.Close()
	defer logger.Sync()

	logger.Base().Info("Server initialized successfully", zap.String("port", cfg.Port))

	if err := server.Start(); err != nil {
		logger.Base().Fatal("Server stopped", zap.Error(err))
	}
}
