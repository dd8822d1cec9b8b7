package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/voxbridge/relay-service/pkg/logger"
	"github.com/voxbridge/relay-service/pkg/pubsub"
	"go.uber.org/zap"
)

// Publisher mirrors alerts onto an ops topic. *pubsub.PubSubService
// satisfies it; nil disables mirroring.
type Publisher interface {
	PublishOpsEvent(ctx context.Context, ev pubsub.OpsEvent) error
}

// Sink delivers best-effort operational alerts to a webhook channel.
// Delivery failures are logged and never escalated: there is no
// alert-about-the-alerter loop.
type Sink struct {
	webhookURL string
	httpClient *http.Client
	publisher  Publisher
}

func NewSink(webhookURL string, publisher Publisher) *Sink {
	return &Sink{
		webhookURL: webhookURL,
		publisher:  publisher,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Notify posts msg to the ops webhook and, when a publisher is configured,
// mirrors it as an ops event. Fire and forget: errors are swallowed here.
func (s *Sink) Notify(ctx context.Context, msg string) {
	logger.Base().Info("alert", zap.String("message", msg))

	if s.webhookURL != "" {
		body, err := json.Marshal(webhookPayload{Content: msg})
		if err != nil {
			logger.Base().Error("alert payload marshal failed", zap.Error(err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			logger.Base().Error("alert request build failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			logger.Base().Error("alert delivery failed", zap.Error(err))
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 300 {
				logger.Base().Error("alert webhook rejected", zap.Int("status_code", resp.StatusCode))
			}
		}
	}

	if s.publisher != nil {
		ev := pubsub.OpsEvent{
			Severity:  "error",
			Component: "relay-service",
			Message:   msg,
		}
		if err := s.publisher.PublishOpsEvent(ctx, ev); err != nil {
			logger.Base().Error("alert mirror failed", zap.Error(err))
		}
	}
}
