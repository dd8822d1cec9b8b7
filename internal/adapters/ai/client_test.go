package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxbridge/relay-service/internal/apierr"
)

func completionServer(t *testing.T, reply string, capture *completionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestQueryReturnsCompletion(t *testing.T) {
	var got completionRequest
	server := completionServer(t, "hi there", &got)
	defer server.Close()

	c := NewClient(server.URL, "key", "test-model", 0)
	reply, err := c.Query(context.Background(), "hello", "", 0)

	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestQueryAppendsMediaContentPart(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "described"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "test-model", 0)
	_, err := c.Query(context.Background(), "describe this", "https://cdn.example/pic.jpg", 0)
	require.NoError(t, err)

	messages := raw["messages"].([]interface{})
	require.Len(t, messages, 3)
	mediaMsg := messages[2].(map[string]interface{})
	parts := mediaMsg["content"].([]interface{})
	require.Len(t, parts, 1)
	part := parts[0].(map[string]interface{})
	assert.Equal(t, "image_url", part["type"])
	assert.Equal(t, map[string]interface{}{"url": "https://cdn.example/pic.jpg"}, part["image_url"])
}

func TestQueryMaxTokensPrecedence(t *testing.T) {
	var got completionRequest
	server := completionServer(t, "ok", &got)
	defer server.Close()

	c := NewClient(server.URL, "key", "test-model", 500)

	_, err := c.Query(context.Background(), "hello", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 500, got.MaxTokens, "client default used when call site passes 0")

	_, err = c.Query(context.Background(), "hello", "", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, got.MaxTokens, "call-site override wins")
}

func TestQueryUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "test-model", 0)
	_, err := c.Query(context.Background(), "hello", "", 0)

	require.Error(t, err)
	assert.Equal(t, apierr.KindUpstream, apierr.KindOf(err))
}

func TestQueryNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "test-model", 0)
	_, err := c.Query(context.Background(), "hello", "", 0)

	require.Error(t, err)
	assert.Equal(t, apierr.KindUpstream, apierr.KindOf(err))
	assert.Contains(t, err.Error(), "no choices")
}
