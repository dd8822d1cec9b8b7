package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Querier produces a text completion for an inbound message.
type Querier interface {
	Query(ctx context.Context, prompt, mediaURL string, maxTokens int) (string, error)
}

// Synthesizer converts reply text to a voice payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Alerter receives best-effort operational notifications.
type Alerter interface {
	Notify(ctx context.Context, msg string)
}

// MeetingLinker mints a joinable video call invite.
type MeetingLinker interface {
	MeetingLink(ctx context.Context, chatHistory string, record bool) (string, error)
}

// botAPI is the slice of the bot platform the webhook needs.
type botAPI interface {
	SendText(ctx context.Context, chatID, text string) error
	SendVoice(ctx context.Context, chatID string, audio []byte) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

const (
	welcomeText       = "Bot started! Send text, voice, or /video_call for video chat with recording."
	apologyText       = "Sorry, something went wrong!"
	voiceApologyText  = "Sorry, couldn't process the voice!"
	voiceDownloadText = "Failed to download voice!"
	voicePrompt       = "Transcribe and respond to this voice message."
)

// TelegramWebhookHandler routes inbound bot platform updates: the start
// command, free text, voice notes, and the video call command.
type TelegramWebhookHandler struct {
	bot    botAPI
	ai     Querier
	synth  Synthesizer
	broker MeetingLinker
	alerts Alerter
}

func NewTelegramWebhookHandler(bot botAPI, ai Querier, synth Synthesizer, broker MeetingLinker, alerts Alerter) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		bot:    bot,
		ai:     ai,
		synth:  synth,
		broker: broker,
		alerts: alerts,
	}
}

// SetupTelegramRoutes registers the bot platform webhook.
func (h *TelegramWebhookHandler) SetupTelegramRoutes(router *mux.Router) {
	router.HandleFunc("/webhook", h.HandleWebhook).Methods("POST")
}

// Update is the bot platform webhook envelope.
type Update struct {
	UpdateID int64          `json:"update_id"`
	Message  *UpdateMessage `json:"message,omitempty"`
}

type UpdateMessage struct {
	MessageID int64       `json:"message_id"`
	From      *UpdateUser `json:"from,omitempty"`
	Chat      *UpdateChat `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Voice     *UpdateVoice `json:"voice,omitempty"`
}

type UpdateUser struct {
	ID int64 `json:"id"`
}

type UpdateChat struct {
	ID int64 `json:"id"`
}

type UpdateVoice struct {
	FileID string `json:"file_id"`
}

// HandleWebhook always answers HTTP 200; failures are reported only in the
// status envelope so the platform does not retry-storm the service.
func (h *TelegramWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		logger.Base().Error("telegram webhook decode failed", zap.Error(err))
		h.alerts.Notify(r.Context(), "Telegram webhook error: "+err.Error())
		writeJSON(w, http.StatusOK, statusError)
		return
	}

	if err := h.processUpdate(r.Context(), &update); err != nil {
		logger.Base().Error("telegram update failed", zap.Error(err))
		h.alerts.Notify(r.Context(), "Telegram webhook error: "+err.Error())
		writeJSON(w, http.StatusOK, statusError)
		return
	}

	writeJSON(w, http.StatusOK, statusOK)
}

func (h *TelegramWebhookHandler) processUpdate(ctx context.Context, update *Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		// Edits, channel posts and other update kinds are ignored.
		return nil
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	switch {
	case msg.Voice != nil:
		return h.handleVoice(ctx, chatID, msg.Voice.FileID)
	case msg.Text == "/start":
		return h.handleStart(ctx, chatID)
	case strings.HasPrefix(msg.Text, "/video_call"):
		return h.handleVideoCall(ctx, chatID)
	case msg.Text != "":
		return h.handleText(ctx, chatID, msg.Text)
	default:
		return nil
	}
}

func (h *TelegramWebhookHandler) handleStart(ctx context.Context, chatID string) error {
	if err := h.bot.SendText(ctx, chatID, welcomeText); err != nil {
		return err
	}
	h.alerts.Notify(ctx, "User "+chatID+" started bot")
	return nil
}

func (h *TelegramWebhookHandler) handleText(ctx context.Context, chatID, text string) error {
	logger.Base().Info("telegram text received", zap.String("chat_id", chatID), zap.Int("length", len(text)))

	reply, err := h.ai.Query(ctx, text, "", 0)
	if err != nil {
		logger.Base().Error("completion failed", zap.Error(err))
		h.alerts.Notify(ctx, "AI error: "+err.Error())
		return h.bot.SendText(ctx, chatID, apologyText)
	}

	if err := h.bot.SendText(ctx, chatID, reply); err != nil {
		return err
	}

	if strings.Contains(strings.ToLower(text), "error") {
		h.alerts.Notify(ctx, "Error from "+chatID+": "+text)
	}
	return nil
}

// handleVoice runs the voice round trip: resolve the note's download URL,
// complete against it, speak the reply. Synthesis failure degrades to a
// text reply at this layer.
func (h *TelegramWebhookHandler) handleVoice(ctx context.Context, chatID, fileID string) error {
	voiceURL, err := h.bot.FileURL(ctx, fileID)
	if err != nil {
		logger.Base().Error("voice url resolution failed", zap.Error(err))
		h.alerts.Notify(ctx, "Telegram voice download error: "+err.Error())
		return h.bot.SendText(ctx, chatID, voiceDownloadText)
	}

	reply, err := h.ai.Query(ctx, voicePrompt, voiceURL, 0)
	if err != nil {
		logger.Base().Error("voice completion failed", zap.Error(err))
		h.alerts.Notify(ctx, "AI error: "+err.Error())
		return h.bot.SendText(ctx, chatID, voiceApologyText)
	}

	audio, err := h.synth.Synthesize(ctx, reply)
	if err != nil {
		logger.Base().Warn("synthesis failed, falling back to text", zap.Error(err))
		h.alerts.Notify(ctx, "TTS error: "+err.Error())
		return h.bot.SendText(ctx, chatID, reply)
	}

	return h.bot.SendVoice(ctx, chatID, audio)
}

func (h *TelegramWebhookHandler) handleVideoCall(ctx context.Context, chatID string) error {
	invite, err := h.broker.MeetingLink(ctx, "", true)
	if err != nil {
		return err
	}
	logger.Base().Info("video call requested", zap.String("chat_id", chatID))
	return h.bot.SendText(ctx, chatID, invite)
}
