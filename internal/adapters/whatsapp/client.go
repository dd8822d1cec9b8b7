package whatsapp

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
	"golang.org/x/time/rate"
)

// ValidMediaType reports whether t is a media type the Business API
// accepts for outbound media messages.
func ValidMediaType(t string) bool {
	switch t {
	case "image", "video", "document", "audio":
		return true
	}
	return false
}

// Client talks to the WhatsApp Business (Graph) API: outbound messages,
// media upload/lookup, and the Calling API.
type Client struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	HTTPClient    *http.Client
	limiter       *rate.Limiter
}

// NewClient creates a Graph API client. sendRate throttles outbound
// requests (requests per second); zero disables throttling.
func NewClient(baseURL, apiVersion, phoneNumberID, accessToken string, sendRate float64) *Client {
	var limiter *rate.Limiter
	if sendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(sendRate), 1)
	}
	return &Client{
		BaseURL:       baseURL,
		APIVersion:    apiVersion,
		PhoneNumberID: phoneNumberID,
		AccessToken:   accessToken,
		limiter:       limiter,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.APIVersion, c.PhoneNumberID)
}

func (c *Client) mediaUploadURL() string {
	return fmt.Sprintf("%s/%s/%s/media", c.BaseURL, c.APIVersion, c.PhoneNumberID)
}

func (c *Client) callsURL() string {
	return fmt.Sprintf("%s/%s/%s/calls", c.BaseURL, c.APIVersion, c.PhoneNumberID)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// outboundMessage is the union of payloads the composer knows how to send.
// Exactly one of Text / (MediaID, MediaType) / Voice should be populated.
type outboundMessage struct {
	Text      string
	MediaID   string
	MediaType string
	Voice     []byte
}

// send composes the provider-specific request body from whichever payload
// field is populated and issues one messages call. Voice payloads need an
// extra upload sub-call first to obtain a media ID.
func (c *Client) send(ctx context.Context, toPhone string, msg outboundMessage) error {
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                toPhone,
	}

	switch {
	case msg.Text != "":
		body["type"] = "text"
		body["text"] = map[string]string{"body": msg.Text}
	case msg.MediaID != "" && ValidMediaType(msg.MediaType):
		body["type"] = msg.MediaType
		body[msg.MediaType] = map[string]string{"id": msg.MediaID}
	case len(msg.Voice) > 0:
		mediaID, err := c.UploadMedia(ctx, "voice.mp3", "audio/mpeg", msg.Voice)
		if err != nil {
			return err
		}
		body["type"] = "audio"
		body["audio"] = map[string]string{"id": mediaID}
	default:
		return apierr.Newf(apierr.KindValidation, "whatsapp.send", "no payload to send")
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	if err := c.wait(ctx); err != nil {
		return apierr.New(apierr.KindNetwork, "whatsapp.send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apierr.New(apierr.KindNetwork, "whatsapp.send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierr.Newf(apierr.KindUpstream, "whatsapp.send",
			"messages API returned %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Base().Info("whatsapp message sent",
		zap.String("to", toPhone),
		zap.String("type", fmt.Sprintf("%v", body["type"])))
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, toPhone, text string) error {
	return c.send(ctx, toPhone, outboundMessage{Text: text})
}

// SendMedia sends a previously uploaded media object by ID.
func (c *Client) SendMedia(ctx context.Context, toPhone, mediaID, mediaType string) error {
	if mediaID == "" || !ValidMediaType(mediaType) {
		return apierr.Newf(apierr.KindValidation, "whatsapp.sendMedia",
			"media id and a valid media type are required")
	}
	return c.send(ctx, toPhone, outboundMessage{MediaID: mediaID, MediaType: mediaType})
}

// SendVoice uploads audio and sends it as a voice message.
func (c *Client) SendVoice(ctx context.Context, toPhone string, audio []byte) error {
	return c.send(ctx, toPhone, outboundMessage{Voice: audio})
}

type mediaUploadResponse struct {
	ID string `json:"id"`
}

// UploadMedia uploads a file to the provider and returns its media ID.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("failed to write messaging_product field: %v", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %v", err)
	}

	if err := c.wait(ctx); err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.uploadMedia", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mediaUploadURL(), &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.uploadMedia", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.uploadMedia", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.uploadMedia",
			"media API returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response mediaUploadResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", apierr.New(apierr.KindUpstream, "whatsapp.uploadMedia",
			fmt.Errorf("failed to decode response: %v", err))
	}
	if response.ID == "" {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.uploadMedia", "upload response missing media id")
	}

	logger.Base().Info("whatsapp media uploaded", zap.String("media_id", response.ID))
	return response.ID, nil
}

type mediaLookupResponse struct {
	URL string `json:"url"`
}

// ResolveMediaURL resolves an inbound media ID to its short-lived download
// URL. The URL requires the same bearer token to fetch; retrieval itself is
// deferred to the consumer.
func (c *Client) ResolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.BaseURL, c.APIVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.resolveMedia", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.resolveMedia", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.resolveMedia",
			"media API returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response mediaLookupResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", apierr.New(apierr.KindUpstream, "whatsapp.resolveMedia",
			fmt.Errorf("failed to decode response: %v", err))
	}
	if response.URL == "" {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.resolveMedia", "lookup response missing url")
	}
	return response.URL, nil
}

type createCallRequest struct {
	CalleePhoneNumber string `json:"callee_phone_number"`
	CallType          string `json:"call_type"`
	Record            bool   `json:"record"`
}

type createCallResponse struct {
	CallID string `json:"call_id"`
}

// CreateCall requests a call session from the Calling API and returns the
// provider-assigned session ID. No retry, no fallback call type.
func (c *Client) CreateCall(ctx context.Context, calleePhone, callType string, record bool) (string, error) {
	reqBody := createCallRequest{
		CalleePhoneNumber: calleePhone,
		CallType:          callType,
		Record:            record,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	if err := c.wait(ctx); err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.createCall", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.callsURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.createCall", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.New(apierr.KindNetwork, "whatsapp.createCall", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.createCall",
			"calls API returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response createCallResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", apierr.New(apierr.KindUpstream, "whatsapp.createCall",
			fmt.Errorf("failed to decode response: %v", err))
	}
	if response.CallID == "" {
		return "", apierr.Newf(apierr.KindUpstream, "whatsapp.createCall", "calls response missing call_id")
	}

	logger.Base().Info("whatsapp call created",
		zap.String("call_id", response.CallID),
		zap.String("call_type", callType),
		zap.Bool("record", record))
	return response.CallID, nil
}

type acceptCallRequest struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// AcceptCall accepts an incoming call session.
func (c *Client) AcceptCall(ctx context.Context, callID string) error {
	reqBody := acceptCallRequest{CallID: callID, Status: "accepted"}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("%s/%s/accept", c.callsURL(), callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apierr.New(apierr.KindNetwork, "whatsapp.acceptCall", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apierr.Newf(apierr.KindUpstream, "whatsapp.acceptCall",
			"calls API returned %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Base().Info("whatsapp call accepted", zap.String("call_id", callID))
	return nil
}
