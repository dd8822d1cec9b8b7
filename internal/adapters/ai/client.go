package ai

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

// systemInstruction is the fixed system prompt sent with every completion.
const systemInstruction = "You are a helpful assistant. Transcribe or describe media if provided."

// DefaultMaxTokens caps replies when the caller does not override it.
const DefaultMaxTokens = 150

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int // used when a call site passes 0
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, model string, maxTokens int) *Client {
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     model,
		MaxTokens: maxTokens,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Query sends prompt (plus an optional media reference) to the completion
// API and returns the generated text. Failures come back classified as
// network or upstream; callers treat them as "no reply available".
func (c *Client) Query(ctx context.Context, prompt, mediaURL string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := []chatMessage{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: prompt},
	}
	if mediaURL != "" {
		messages = append(messages, chatMessage{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{URL: mediaURL}},
			},
		})
	}

	reqBody := completionRequest{
		Model:     c.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "ai.query", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "ai.query", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apierr.Newf(apierr.KindUpstream, "ai.query",
			"completion API returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response completionResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", apierr.New(apierr.KindUpstream, "ai.query", fmt.Errorf("failed to decode response: %v", err))
	}

	if len(response.Choices) == 0 {
		return "", apierr.Newf(apierr.KindUpstream, "ai.query", "completion API returned no choices")
	}

	reply := response.Choices[0].Message.Content
	logger.Base().Info("completion received",
		zap.Int("prompt_length", len(prompt)),
		zap.Int("reply_length", len(reply)),
		zap.Bool("with_media", mediaURL != ""))
	return reply, nil
}
