package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postUpdate(t *testing.T, h *TelegramWebhookHandler, update Update) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(update)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func textUpdate(chatID int64, text string) Update {
	return Update{
		UpdateID: 1,
		Message: &UpdateMessage{
			MessageID: 1,
			Chat:      &UpdateChat{ID: chatID},
			Text:      text,
		},
	}
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestTelegramStartCommand(t *testing.T) {
	bot := newFakeBot()
	alerts := &fakeAlerts{}
	h := NewTelegramWebhookHandler(bot, &fakeQuerier{}, &fakeSynth{}, &fakeLinker{}, alerts)

	rec := postUpdate(t, h, textUpdate(42, "/start"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeStatus(t, rec)["status"])
	require.Len(t, bot.texts["42"], 1)
	assert.Contains(t, bot.texts["42"][0], "Bot started!")
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "User 42 started bot")
}

func TestTelegramFreeTextGetsCompletion(t *testing.T) {
	bot := newFakeBot()
	ai := &fakeQuerier{reply: "the answer"}
	h := NewTelegramWebhookHandler(bot, ai, &fakeSynth{}, &fakeLinker{}, &fakeAlerts{})

	rec := postUpdate(t, h, textUpdate(42, "what is the answer?"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"what is the answer?"}, ai.prompts)
	assert.Equal(t, []string{"the answer"}, bot.texts["42"])
}

func TestTelegramCompletionFailureApologizes(t *testing.T) {
	bot := newFakeBot()
	ai := &fakeQuerier{err: errors.New("upstream down")}
	alerts := &fakeAlerts{}
	h := NewTelegramWebhookHandler(bot, ai, &fakeSynth{}, &fakeLinker{}, alerts)

	rec := postUpdate(t, h, textUpdate(42, "hello"))

	assert.Equal(t, http.StatusOK, rec.Code, "provider failures stay behind 200")
	assert.Equal(t, []string{apologyText}, bot.texts["42"])
	require.NotEmpty(t, alerts.messages)
	assert.Contains(t, alerts.messages[0], "AI error")
}

func TestTelegramErrorSubstringAlerts(t *testing.T) {
	bot := newFakeBot()
	alerts := &fakeAlerts{}
	h := NewTelegramWebhookHandler(bot, &fakeQuerier{reply: "ok"}, &fakeSynth{}, &fakeLinker{}, alerts)

	postUpdate(t, h, textUpdate(42, "I keep getting an ERROR here"))

	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "Error from 42")
}

func TestTelegramVoiceRoundTrip(t *testing.T) {
	bot := newFakeBot()
	bot.fileURL = "https://files.example/voice/note.ogg"
	ai := &fakeQuerier{reply: "spoken reply"}
	synth := &fakeSynth{audio: []byte("audio")}
	h := NewTelegramWebhookHandler(bot, ai, synth, &fakeLinker{}, &fakeAlerts{})

	update := Update{Message: &UpdateMessage{
		Chat:  &UpdateChat{ID: 42},
		Voice: &UpdateVoice{FileID: "file-1"},
	}}
	rec := postUpdate(t, h, update)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://files.example/voice/note.ogg"}, ai.mediaURLs)
	assert.Equal(t, 1, bot.voices["42"])
	assert.Empty(t, bot.texts["42"])
}

func TestTelegramVoiceSynthesisFailureFallsBackToText(t *testing.T) {
	bot := newFakeBot()
	bot.fileURL = "https://files.example/voice/note.ogg"
	ai := &fakeQuerier{reply: "spoken reply"}
	synth := &fakeSynth{err: errors.New("tts down")}
	alerts := &fakeAlerts{}
	h := NewTelegramWebhookHandler(bot, ai, synth, &fakeLinker{}, alerts)

	update := Update{Message: &UpdateMessage{
		Chat:  &UpdateChat{ID: 42},
		Voice: &UpdateVoice{FileID: "file-1"},
	}}
	postUpdate(t, h, update)

	assert.Zero(t, bot.voices["42"])
	assert.Equal(t, []string{"spoken reply"}, bot.texts["42"], "reply text delivered instead of audio")
	require.NotEmpty(t, alerts.messages)
	assert.Contains(t, alerts.messages[0], "TTS error")
}

func TestTelegramVoiceDownloadFailure(t *testing.T) {
	bot := newFakeBot()
	bot.fileErr = errors.New("file expired")
	h := NewTelegramWebhookHandler(bot, &fakeQuerier{}, &fakeSynth{}, &fakeLinker{}, &fakeAlerts{})

	update := Update{Message: &UpdateMessage{
		Chat:  &UpdateChat{ID: 42},
		Voice: &UpdateVoice{FileID: "file-1"},
	}}
	postUpdate(t, h, update)

	assert.Equal(t, []string{voiceDownloadText}, bot.texts["42"])
}

func TestTelegramVideoCallCommand(t *testing.T) {
	bot := newFakeBot()
	linker := &fakeLinker{invite: "Ready for video call.\nJoin (recording enabled): https://meet.example/abc"}
	h := NewTelegramWebhookHandler(bot, &fakeQuerier{}, &fakeSynth{}, linker, &fakeAlerts{})

	rec := postUpdate(t, h, textUpdate(42, "/video_call"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{linker.invite}, bot.texts["42"])
}

func TestTelegramIgnoresNonMessageUpdates(t *testing.T) {
	bot := newFakeBot()
	h := NewTelegramWebhookHandler(bot, &fakeQuerier{}, &fakeSynth{}, &fakeLinker{}, &fakeAlerts{})

	rec := postUpdate(t, h, Update{UpdateID: 9})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeStatus(t, rec)["status"])
	assert.Empty(t, bot.texts)
}

func TestTelegramMalformedBodyStaysBehind200(t *testing.T) {
	h := NewTelegramWebhookHandler(newFakeBot(), &fakeQuerier{}, &fakeSynth{}, &fakeLinker{}, &fakeAlerts{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeStatus(t, rec)["status"])
}
