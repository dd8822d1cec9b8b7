package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voxbridge/relay-service/internal/apierr"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// Client sends messages through the Telegram Bot API and resolves voice
// note file IDs to direct-download URLs.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// apiResponse is the generic Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*apiResponse, error) {
	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.KindNetwork, "telegram."+method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, method)
}

func decodeResponse(resp *http.Response, method string) (*apiResponse, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.KindNetwork, "telegram."+method, err)
	}

	var response apiResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, apierr.New(apierr.KindUpstream, "telegram."+method,
			fmt.Errorf("failed to decode response: %v", err))
	}

	if !response.OK {
		return nil, apierr.Newf(apierr.KindUpstream, "telegram."+method,
			"bot API error %d: %s", response.ErrorCode, response.Description)
	}
	return &response, nil
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	params := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if _, err := c.call(ctx, "sendMessage", params); err != nil {
		return err
	}
	logger.Base().Info("telegram text sent", zap.String("chat_id", chatID), zap.Int("length", len(text)))
	return nil
}

// SendVoice uploads and sends a voice note to a chat.
func (c *Client) SendVoice(ctx context.Context, chatID string, audio []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %v", err)
	}
	part, err := writer.CreateFormFile("voice", "voice.mp3")
	if err != nil {
		return fmt.Errorf("failed to create voice part: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		return fmt.Errorf("failed to write voice payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendVoice"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apierr.New(apierr.KindNetwork, "telegram.sendVoice", err)
	}
	defer resp.Body.Close()

	if _, err := decodeResponse(resp, "sendVoice"); err != nil {
		return err
	}
	logger.Base().Info("telegram voice sent", zap.String("chat_id", chatID), zap.Int("audio_bytes", len(audio)))
	return nil
}

type fileResult struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// FileURL resolves a file ID to a short-lived direct-download URL. The
// fetch itself is deferred to whoever consumes the URL.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	resp, err := c.call(ctx, "getFile", map[string]string{"file_id": fileID})
	if err != nil {
		return "", err
	}

	var file fileResult
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return "", apierr.New(apierr.KindUpstream, "telegram.getFile",
			fmt.Errorf("failed to parse file result: %v", err))
	}

	return fmt.Sprintf("%s/file/bot%s/%s", c.BaseURL, c.Token, file.FilePath), nil
}

// SetWebhook registers url as the bot's update webhook.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	if _, err := c.call(ctx, "setWebhook", map[string]string{"url": url}); err != nil {
		return err
	}
	logger.Base().Info("telegram webhook set", zap.String("url", url))
	return nil
}
