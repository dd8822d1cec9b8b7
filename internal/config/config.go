package config

// RelayConfig holds the full relay service configuration. It is populated
// once at startup from the environment (see cmd/server) and handed to the
// handler manager; components receive the values they need through their
// constructors rather than reading the environment themselves.
type RelayConfig struct {
	Port   string
	LogEnv string

	// Telegram bot platform
	TelegramBotToken   string
	TelegramAPIBaseURL string
	WebhookURL         string

	// WhatsApp Business (Graph) API
	GraphBaseURL          string
	WhatsAppAPIVersion    string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppVerifyToken   string
	WhatsAppSendRate      float64 // outbound Graph requests per second, 0 = unthrottled

	// AI completion provider (OpenAI-compatible)
	AIAPIKey    string
	AIBaseURL   string
	AIModel     string
	AIMaxTokens int

	// Speech synthesis provider
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string

	// Video call link minting
	JitsiDomain    string
	JitsiAppID     string
	JitsiAppSecret string

	// Alerting
	AlertWebhookURL    string
	AlertPubSubProject string
	AlertPubSubTopic   string

	// Shared secret for the automation trigger and upload endpoints
	TaskerSecret string

	// Rate limiting (fixed window, counters in redis)
	RedisHost              string
	RedisPort              string
	RedisPassword          string
	RateLimitRequests      int
	RateLimitWindowSeconds int

	// Call recordings
	RecordingsPath       string
	RecordingStorageType string // "local" or "gcs"
	RecordingGCSBucket   string
}
