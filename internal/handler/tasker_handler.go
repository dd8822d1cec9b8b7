package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/voxbridge/relay-service/internal/dispatch"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// notifier runs the outbound delivery decision tree.
type notifier interface {
	Dispatch(ctx context.Context, reply string, target dispatch.Target) dispatch.Result
}

// uploader pushes media bytes to the provider and returns the media id.
type uploader interface {
	UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// TaskerHandler serves the automation surface: the notification trigger and
// the media upload proxy. Both are shared-secret protected.
type TaskerHandler struct {
	secret     string
	ai         Querier
	dispatcher notifier
	uploads    uploader
	alerts     Alerter
}

func NewTaskerHandler(secret string, ai Querier, dispatcher notifier, uploads uploader, alerts Alerter) *TaskerHandler {
	return &TaskerHandler{
		secret:     secret,
		ai:         ai,
		dispatcher: dispatcher,
		uploads:    uploads,
		alerts:     alerts,
	}
}

func (h *TaskerHandler) SetupTaskerRoutes(router *mux.Router) {
	router.HandleFunc("/tasker", h.HandleTasker).Methods("POST")
	router.HandleFunc("/whatsapp/upload", h.HandleUpload).Methods("POST")
}

// TaskerRequest is the automation trigger payload. Destination fields are
// optional individually but at least one must be present.
type TaskerRequest struct {
	Query       string `json:"query"`
	ChatID      string `json:"chat_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	SendVoice   bool   `json:"send_voice,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	VideoCall   bool   `json:"video_call,omitempty"`
	CallType    string `json:"call_type,omitempty"`
	RecordCall  bool   `json:"record_call,omitempty"`
}

func (h *TaskerHandler) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == h.secret && h.secret != ""
}

// HandleTasker validates the trigger, asks the AI for a reply, and hands
// delivery to the dispatcher. Auth and validation are the only non-200
// responses; delivery failures stay in the status envelope.
func (h *TaskerHandler) HandleTasker(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		logger.Base().Warn("tasker auth failed", zap.String("remote", clientIP(r)))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "unauthorized"})
		return
	}

	var req TaskerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "query is required"})
		return
	}

	target := targetFromRequest(req)
	if err := target.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	ctx := r.Context()
	reply, err := h.ai.Query(ctx, req.Query, "", 0)
	if err != nil {
		logger.Base().Error("tasker completion failed", zap.Error(err))
		h.alerts.Notify(ctx, "AI error: "+err.Error())
		writeJSON(w, http.StatusOK, statusError)
		return
	}

	result := h.dispatcher.Dispatch(ctx, reply, target)
	if result.Err != nil || !result.Delivered() {
		writeJSON(w, http.StatusOK, statusError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "response": reply})
}

// targetFromRequest maps the trigger payload onto a delivery target. Video
// call wins over voice, voice over media; the dispatcher re-checks media
// validity and falls through on its own.
func targetFromRequest(req TaskerRequest) dispatch.Target {
	target := dispatch.Target{
		ChatID:      req.ChatID,
		PhoneNumber: req.PhoneNumber,
		Mode:        dispatch.ModeText,
		MediaID:     req.MediaID,
		MediaType:   req.MediaType,
		Record:      req.RecordCall,
	}

	switch {
	case req.VideoCall:
		target.Mode = dispatch.ModeVideoCall
		target.CallType = req.CallType
		if target.CallType == "" {
			target.CallType = "video"
		}
	case req.SendVoice:
		target.Mode = dispatch.ModeVoice
	case req.MediaID != "":
		target.Mode = dispatch.ModeMedia
	}

	return target
}

// HandleUpload proxies a multipart file to the provider media endpoint and
// returns the media id for later tasker triggers.
func (h *TaskerHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		logger.Base().Warn("upload auth failed", zap.String("remote", clientIP(r)))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "unauthorized"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "failed to read file"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	mediaID, err := h.uploads.UploadMedia(r.Context(), header.Filename, contentType, data)
	if err != nil {
		logger.Base().Error("media upload failed",
			zap.String("filename", header.Filename),
			zap.Error(err))
		h.alerts.Notify(r.Context(), "Upload error: "+err.Error())
		writeJSON(w, http.StatusInternalServerError, statusError)
		return
	}

	logger.Base().Info("media uploaded",
		zap.String("filename", header.Filename),
		zap.String("media_id", mediaID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "media_id": mediaID})
}
