package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/voxbridge/relay-service/internal/adapters/ai"
	"github.com/voxbridge/relay-service/internal/adapters/speech"
	"github.com/voxbridge/relay-service/internal/adapters/telegram"
	"github.com/voxbridge/relay-service/internal/adapters/whatsapp"
	"github.com/voxbridge/relay-service/internal/alert"
	"github.com/voxbridge/relay-service/internal/config"
	"github.com/voxbridge/relay-service/internal/dispatch"
	"github.com/voxbridge/relay-service/internal/ratelimit"
	"github.com/voxbridge/relay-service/internal/recording"
	"github.com/voxbridge/relay-service/internal/videocall"
	"github.com/voxbridge/relay-service/pkg/gcs"
	"github.com/voxbridge/relay-service/pkg/logger"
	"github.com/voxbridge/relay-service/pkg/pubsub"
	"github.com/voxbridge/relay-service/pkg/redis"
	"go.uber.org/zap"
)

// HandlerManager constructs every service the relay exposes and owns the
// route table. Construction is fail-soft for optional infrastructure
// (redis, pubsub, gcs): the relay runs degraded rather than not at all.
type HandlerManager struct {
	config *config.RelayConfig

	telegramHandler *TelegramWebhookHandler
	whatsappHandler *WhatsAppWebhookHandler
	taskerHandler   *TaskerHandler

	limiter *ratelimit.Limiter
	bot     *telegram.Client
	pubsub  *pubsub.PubSubService
}

func NewHandlerManager(cfg *config.RelayConfig) (*HandlerManager, error) {
	ctx := context.Background()

	var limiter *ratelimit.Limiter
	if cfg.RateLimitRequests > 0 {
		redisService, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Base().Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		} else {
			limiter = ratelimit.New(redisService, cfg.RateLimitRequests,
				time.Duration(cfg.RateLimitWindowSeconds)*time.Second)
		}
	}

	var publisher alert.Publisher
	var pubsubService *pubsub.PubSubService
	if cfg.AlertPubSubProject != "" && cfg.AlertPubSubTopic != "" {
		var err error
		pubsubService, err = pubsub.NewPubSubService(ctx, &pubsub.PubSubConfig{
			ProjectID: cfg.AlertPubSubProject,
			TopicName: cfg.AlertPubSubTopic,
		})
		if err != nil {
			logger.Base().Warn("pubsub unavailable, alert mirroring disabled", zap.Error(err))
		} else {
			publisher = pubsubService
		}
	}
	alerts := alert.NewSink(cfg.AlertWebhookURL, publisher)

	bot := telegram.NewClient(cfg.TelegramAPIBaseURL, cfg.TelegramBotToken)
	phone := whatsapp.NewClient(cfg.GraphBaseURL, cfg.WhatsAppAPIVersion,
		cfg.WhatsAppPhoneNumberID, cfg.WhatsAppAccessToken, cfg.WhatsAppSendRate)
	aiClient := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AIMaxTokens)
	synth := speech.NewClient(cfg.ElevenLabsBaseURL, cfg.ElevenLabsAPIKey)
	broker := videocall.NewBroker(cfg.JitsiDomain, cfg.JitsiAppID, cfg.JitsiAppSecret, aiClient, phone)

	var mirror recording.Mirror
	if cfg.RecordingStorageType == "gcs" && cfg.RecordingGCSBucket != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.RecordingGCSBucket)
		if err != nil {
			logger.Base().Warn("gcs unavailable, recordings stay local", zap.Error(err))
		} else {
			mirror = gcsClient
		}
	}
	recordings, err := recording.NewStore(cfg.RecordingsPath, mirror, aiClient, alerts)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.New(bot, phone, synth, broker, alerts)

	return &HandlerManager{
		config:          cfg,
		telegramHandler: NewTelegramWebhookHandler(bot, aiClient, synth, broker, alerts),
		whatsappHandler: NewWhatsAppWebhookHandler(cfg.WhatsAppVerifyToken, phone, aiClient, synth, recordings, alerts),
		taskerHandler:   NewTaskerHandler(cfg.TaskerSecret, aiClient, dispatcher, phone, alerts),
		limiter:         limiter,
		bot:             bot,
		pubsub:          pubsubService,
	}, nil
}

// SetupAllRoutes registers every route on the router.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(GlobalLoggingMiddleware)
	router.Use(CORSMiddleware)

	limited := router.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(hm.limiter))
	hm.telegramHandler.SetupTelegramRoutes(limited)
	hm.whatsappHandler.SetupWhatsAppRoutes(limited)
	hm.taskerHandler.SetupTaskerRoutes(limited)

	router.HandleFunc("/health", hm.HealthCheck).Methods("GET")

	logger.Base().Info("routes registered")
}

// RegisterTelegramWebhook points the bot platform at this deployment's
// public URL. Called once at startup when WEBHOOK_URL is set.
func (hm *HandlerManager) RegisterTelegramWebhook(ctx context.Context) {
	if hm.config.WebhookURL == "" {
		logger.Base().Info("WEBHOOK_URL not set, skipping telegram webhook registration")
		return
	}
	if err := hm.bot.SetWebhook(ctx, hm.config.WebhookURL+"/webhook"); err != nil {
		logger.Base().Error("telegram webhook registration failed", zap.Error(err))
		return
	}
	logger.Base().Info("telegram webhook registered", zap.String("url", hm.config.WebhookURL+"/webhook"))
}

func (hm *HandlerManager) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Close releases infrastructure clients on shutdown.
func (hm *HandlerManager) Close() {
	if hm.pubsub != nil {
		if err := hm.pubsub.Close(); err != nil {
			logger.Base().Warn("pubsub close failed", zap.Error(err))
		}
	}
}
