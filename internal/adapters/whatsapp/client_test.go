package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbridge/relay-service/internal/apierr"
)

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "v21.0", "12345", "token", 0)
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestSendTextComposesProviderBody(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		got = decodeBody(t, r)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	require.NoError(t, c.SendText(context.Background(), "15551234567", "hello"))

	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "15551234567", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, map[string]interface{}{"body": "hello"}, got["text"])
}

func TestSendMediaComposesTypedObject(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	require.NoError(t, c.SendMedia(context.Background(), "15551234567", "media-1", "image"))

	assert.Equal(t, "image", got["type"])
	assert.Equal(t, map[string]interface{}{"id": "media-1"}, got["image"])
}

func TestSendMediaRejectsInvalidType(t *testing.T) {
	c := newTestClient("http://unused.invalid")

	err := c.SendMedia(context.Background(), "15551234567", "media-1", "sticker")

	require.Error(t, err)
	assert.Equal(t, apierr.KindValidation, apierr.KindOf(err))
}

func TestSendVoiceUploadsThenSends(t *testing.T) {
	var paths []string
	var sendBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/v21.0/12345/media":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "whatsapp", r.FormValue("messaging_product"))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			assert.Equal(t, "voice.mp3", header.Filename)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, []byte("audio-bytes"), data)
			json.NewEncoder(w).Encode(map[string]string{"id": "uploaded-7"})
		case "/v21.0/12345/messages":
			sendBody = decodeBody(t, r)
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	require.NoError(t, c.SendVoice(context.Background(), "15551234567", []byte("audio-bytes")))

	require.Equal(t, []string{"/v21.0/12345/media", "/v21.0/12345/messages"}, paths)
	assert.Equal(t, "audio", sendBody["type"])
	assert.Equal(t, map[string]interface{}{"id": "uploaded-7"}, sendBody["audio"])
}

func TestSendUpstreamErrorIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	err := c.SendText(context.Background(), "15551234567", "hello")

	require.Error(t, err)
	assert.Equal(t, apierr.KindUpstream, apierr.KindOf(err))
}

func TestResolveMediaURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/media-9", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example/file.ogg"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	url, err := c.ResolveMediaURL(context.Background(), "media-9")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/file.ogg", url)
}

func TestCreateCall(t *testing.T) {
	var got createCallRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/12345/calls", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"call_id": "call-3"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	callID, err := c.CreateCall(context.Background(), "15551234567", "video", true)

	require.NoError(t, err)
	assert.Equal(t, "call-3", callID)
	assert.Equal(t, createCallRequest{
		CalleePhoneNumber: "15551234567",
		CallType:          "video",
		Record:            true,
	}, got)
}

func TestAcceptCall(t *testing.T) {
	var got acceptCallRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/12345/calls/call-3/accept", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	require.NoError(t, c.AcceptCall(context.Background(), "call-3"))

	assert.Equal(t, acceptCallRequest{CallID: "call-3", Status: "accepted"}, got)
}

func TestValidMediaType(t *testing.T) {
	for _, valid := range []string{"image", "video", "document", "audio"} {
		assert.True(t, ValidMediaType(valid), valid)
	}
	assert.False(t, ValidMediaType("sticker"))
	assert.False(t, ValidMediaType(""))
}
