package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxbridge/relay-service/internal/apierr"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Voice and model are fixed for every synthesis call; callers cannot
// override them.
const (
	voiceID = "pNInz6obpgDQGcFmaJgB"
	modelID = "eleven_monolingual_v1"
)

// Client converts text to speech through the ElevenLabs streaming endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize streams synthesized audio and concatenates the chunks into a
// single buffer. What a failure means is the caller's decision: webhook
// handlers degrade to a text reply, the dispatcher stops the delivery.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody := synthesisRequest{
		Text:    text,
		ModelID: modelID,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.BaseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindNetwork, "speech.synthesize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apierr.Newf(apierr.KindUpstream, "speech.synthesize",
			"speech API returned %d: %s", resp.StatusCode, string(body))
	}

	// Drain the chunked stream into one payload; no incremental delivery.
	var audio bytes.Buffer
	if _, err := io.Copy(&audio, resp.Body); err != nil {
		return nil, apierr.New(apierr.KindNetwork, "speech.synthesize", err)
	}

	logger.Base().Info("speech synthesized",
		zap.Int("text_length", len(text)),
		zap.Int("audio_bytes", audio.Len()))
	return audio.Bytes(), nil
}
