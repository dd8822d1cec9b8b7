package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/voxbridge/relay-service/internal/recording"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// phoneAPI is the slice of the Graph API the webhook needs.
type phoneAPI interface {
	SendText(ctx context.Context, toPhone, text string) error
	SendVoice(ctx context.Context, toPhone string, audio []byte) error
	ResolveMediaURL(ctx context.Context, mediaID string) (string, error)
	AcceptCall(ctx context.Context, callID string) error
}

// recorder persists a finished call recording and its derived artifacts.
type recorder interface {
	Save(ctx context.Context, url, baseName string) (*recording.Artifact, error)
}

// WhatsAppWebhookHandler serves the Graph webhook: the subscription
// verification handshake on GET, message and call events on POST.
type WhatsAppWebhookHandler struct {
	verifyToken string
	phone       phoneAPI
	ai          Querier
	synth       Synthesizer
	recordings  recorder
	alerts      Alerter
}

func NewWhatsAppWebhookHandler(verifyToken string, phone phoneAPI, ai Querier, synth Synthesizer, recordings recorder, alerts Alerter) *WhatsAppWebhookHandler {
	return &WhatsAppWebhookHandler{
		verifyToken: verifyToken,
		phone:       phone,
		ai:          ai,
		synth:       synth,
		recordings:  recordings,
		alerts:      alerts,
	}
}

func (h *WhatsAppWebhookHandler) SetupWhatsAppRoutes(router *mux.Router) {
	router.HandleFunc("/whatsapp/webhook", h.HandleVerification).Methods("GET")
	router.HandleFunc("/whatsapp/webhook", h.HandleWebhook).Methods("POST")
}

// verifyParam reads a handshake parameter. The canonical form is the
// underscore name; the dotted spelling some Graph clients send is accepted
// as an alias.
func verifyParam(query url.Values, name string) string {
	if v := query.Get(name); v != "" {
		return v
	}
	return query.Get(strings.Replace(name, "hub_", "hub.", 1))
}

// HandleVerification answers the subscription handshake: echo the challenge
// when the verify token matches, 403 otherwise.
func (h *WhatsAppWebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := verifyParam(query, "hub_mode")
	token := verifyParam(query, "hub_verify_token")
	challenge := verifyParam(query, "hub_challenge")

	if mode == "subscribe" && token == h.verifyToken {
		logger.Base().Info("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	logger.Base().Warn("whatsapp webhook verification rejected", zap.String("mode", mode))
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// webhookEvent mirrors the Graph webhook envelope, reduced to the fields
// the relay consumes.
type webhookEvent struct {
	Entry []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Value changeValue `json:"value"`
}

type changeValue struct {
	Messages []inboundMessage `json:"messages,omitempty"`
	Calls    []callEvent      `json:"calls,omitempty"`
}

type inboundMessage struct {
	From  string        `json:"from"`
	Type  string        `json:"type"`
	Text  *messageText  `json:"text,omitempty"`
	Audio *messageAudio `json:"audio,omitempty"`
}

type messageText struct {
	Body string `json:"body"`
}

type messageAudio struct {
	ID string `json:"id"`
}

type callEvent struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	Event     string         `json:"event"`
	CallType  string         `json:"call_type,omitempty"`
	Recording *callRecording `json:"recording,omitempty"`
}

type callRecording struct {
	URL string `json:"url"`
}

// HandleWebhook processes every entry/change in the batch. Like the bot
// platform webhook it always answers 200 so the provider does not retry.
func (h *WhatsAppWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		logger.Base().Error("whatsapp webhook decode failed", zap.Error(err))
		h.alerts.Notify(r.Context(), "WhatsApp webhook error: "+err.Error())
		writeJSON(w, http.StatusOK, statusError)
		return
	}

	ctx := r.Context()
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if err := h.processMessage(ctx, msg); err != nil {
					logger.Base().Error("whatsapp message failed",
						zap.String("from", msg.From),
						zap.String("type", msg.Type),
						zap.Error(err))
					h.alerts.Notify(ctx, "WhatsApp webhook error: "+err.Error())
				}
			}
			for _, call := range change.Value.Calls {
				if err := h.processCall(ctx, call); err != nil {
					logger.Base().Error("whatsapp call event failed",
						zap.String("call_id", call.ID),
						zap.String("event", call.Event),
						zap.Error(err))
					h.alerts.Notify(ctx, "WhatsApp call error: "+err.Error())
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, statusOK)
}

func (h *WhatsAppWebhookHandler) processMessage(ctx context.Context, msg inboundMessage) error {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil
		}
		return h.handleText(ctx, msg.From, msg.Text.Body)
	case "audio":
		if msg.Audio == nil {
			return nil
		}
		return h.handleAudio(ctx, msg.From, msg.Audio.ID)
	default:
		logger.Base().Info("whatsapp message type ignored",
			zap.String("from", msg.From),
			zap.String("type", msg.Type))
		return nil
	}
}

func (h *WhatsAppWebhookHandler) handleText(ctx context.Context, from, body string) error {
	reply, err := h.ai.Query(ctx, body, "", 0)
	if err != nil {
		h.alerts.Notify(ctx, "AI error: "+err.Error())
		return h.phone.SendText(ctx, from, apologyText)
	}
	return h.phone.SendText(ctx, from, reply)
}

func (h *WhatsAppWebhookHandler) handleAudio(ctx context.Context, from, mediaID string) error {
	mediaURL, err := h.phone.ResolveMediaURL(ctx, mediaID)
	if err != nil {
		h.alerts.Notify(ctx, "WhatsApp media error: "+err.Error())
		return h.phone.SendText(ctx, from, voiceDownloadText)
	}

	reply, err := h.ai.Query(ctx, voicePrompt, mediaURL, 0)
	if err != nil {
		h.alerts.Notify(ctx, "AI error: "+err.Error())
		return h.phone.SendText(ctx, from, voiceApologyText)
	}

	audio, err := h.synth.Synthesize(ctx, reply)
	if err != nil {
		logger.Base().Warn("synthesis failed, falling back to text", zap.Error(err))
		h.alerts.Notify(ctx, "TTS error: "+err.Error())
		return h.phone.SendText(ctx, from, reply)
	}

	return h.phone.SendVoice(ctx, from, audio)
}

// processCall auto-accepts every inbound call and stores the recording when
// the completed event carries one.
func (h *WhatsAppWebhookHandler) processCall(ctx context.Context, call callEvent) error {
	switch call.Event {
	case "connect", "ringing":
		if err := h.phone.AcceptCall(ctx, call.ID); err != nil {
			return err
		}
		callType := call.CallType
		if callType == "" {
			callType = "video"
		}
		h.alerts.Notify(ctx, fmt.Sprintf("Accepted %s call from %s", callType, call.From))
		return nil
	case "completed", "terminated":
		if call.Recording == nil || call.Recording.URL == "" {
			return nil
		}
		if h.recordings == nil {
			logger.Base().Warn("recording received but no store configured", zap.String("call_id", call.ID))
			return nil
		}
		artifact, err := h.recordings.Save(ctx, call.Recording.URL, "call-"+call.ID)
		if err != nil {
			return err
		}
		logger.Base().Info("call recording stored",
			zap.String("call_id", call.ID),
			zap.String("path", artifact.Path))
		return nil
	default:
		logger.Base().Info("whatsapp call event ignored",
			zap.String("call_id", call.ID),
			zap.String("event", call.Event))
		return nil
	}
}
