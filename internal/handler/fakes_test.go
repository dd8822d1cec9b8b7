package handler

import (
	"context"

	"github.com/voxbridge/relay-service/internal/dispatch"
	"github.com/voxbridge/relay-service/internal/recording"
)

type fakeBot struct {
	texts    map[string][]string // chatID -> messages
	voices   map[string]int
	fileURL  string
	fileErr  error
	sendErr  error
	voiceErr error
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		texts:  make(map[string][]string),
		voices: make(map[string]int),
	}
}

func (f *fakeBot) SendText(ctx context.Context, chatID, text string) error {
	f.texts[chatID] = append(f.texts[chatID], text)
	return f.sendErr
}

func (f *fakeBot) SendVoice(ctx context.Context, chatID string, audio []byte) error {
	f.voices[chatID]++
	return f.voiceErr
}

func (f *fakeBot) FileURL(ctx context.Context, fileID string) (string, error) {
	return f.fileURL, f.fileErr
}

type fakePhoneAPI struct {
	texts         map[string][]string
	voices        map[string]int
	mediaURL      string
	mediaErr      error
	acceptedCalls []string
	acceptErr     error
}

func newFakePhoneAPI() *fakePhoneAPI {
	return &fakePhoneAPI{
		texts:  make(map[string][]string),
		voices: make(map[string]int),
	}
}

func (f *fakePhoneAPI) SendText(ctx context.Context, toPhone, text string) error {
	f.texts[toPhone] = append(f.texts[toPhone], text)
	return nil
}

func (f *fakePhoneAPI) SendVoice(ctx context.Context, toPhone string, audio []byte) error {
	f.voices[toPhone]++
	return nil
}

func (f *fakePhoneAPI) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	return f.mediaURL, f.mediaErr
}

func (f *fakePhoneAPI) AcceptCall(ctx context.Context, callID string) error {
	f.acceptedCalls = append(f.acceptedCalls, callID)
	return f.acceptErr
}

type fakeQuerier struct {
	reply     string
	err       error
	prompts   []string
	mediaURLs []string
}

func (f *fakeQuerier) Query(ctx context.Context, prompt, mediaURL string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.mediaURLs = append(f.mediaURLs, mediaURL)
	return f.reply, f.err
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, f.err
}

type fakeLinker struct {
	invite string
	err    error
}

func (f *fakeLinker) MeetingLink(ctx context.Context, chatHistory string, record bool) (string, error) {
	return f.invite, f.err
}

type fakeAlerts struct {
	messages []string
}

func (f *fakeAlerts) Notify(ctx context.Context, msg string) {
	f.messages = append(f.messages, msg)
}

type fakeRecorder struct {
	savedURLs  []string
	savedNames []string
	artifact   *recording.Artifact
	err        error
}

func (f *fakeRecorder) Save(ctx context.Context, url, baseName string) (*recording.Artifact, error) {
	f.savedURLs = append(f.savedURLs, url)
	f.savedNames = append(f.savedNames, baseName)
	if f.artifact == nil && f.err == nil {
		return &recording.Artifact{Path: "/tmp/recording.ogg", SourceURL: url}, nil
	}
	return f.artifact, f.err
}

type fakeNotifier struct {
	replies []string
	targets []dispatch.Target
	result  dispatch.Result
}

func (f *fakeNotifier) Dispatch(ctx context.Context, reply string, target dispatch.Target) dispatch.Result {
	f.replies = append(f.replies, reply)
	f.targets = append(f.targets, target)
	return f.result
}

type fakeUploader struct {
	mediaID   string
	err       error
	filenames []string
	payloads  [][]byte
}

func (f *fakeUploader) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	f.filenames = append(f.filenames, filename)
	f.payloads = append(f.payloads, data)
	return f.mediaID, f.err
}
