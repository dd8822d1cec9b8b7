package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

type PubSubConfig struct {
	ProjectID string
	TopicName string
}

type PubSubService struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *PubSubConfig
}

// OpsEvent is the payload mirrored onto the ops topic for every alert the
// relay raises. Downstream consumers fan it out to dashboards and pagers.
type OpsEvent struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewPubSubService(ctx context.Context, cfg *PubSubConfig) (*PubSubService, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PubSub project ID is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
		logger.Base().Info("ops topic created", zap.String("topic", cfg.TopicName))
	}

	return &PubSubService{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// PublishOpsEvent publishes an ops event and waits for the server ack.
func (p *PubSubService) PublishOpsEvent(ctx context.Context, ev OpsEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal ops event: %w", err)
	}

	message := &pubsub.Message{
		Attributes: map[string]string{
			"name": fmt.Sprintf("ops:alert:%s", ev.ID),
		},
		Data: data,
	}

	result := p.topic.Publish(ctx, message)
	if _, err := result.Get(ctx); err != nil {
		logger.Base().Error("failed to publish ops event",
			zap.String("id", ev.ID),
			zap.String("component", ev.Component),
			zap.Error(err))
		return fmt.Errorf("failed to publish ops event: %w", err)
	}

	logger.Base().Info("published ops event",
		zap.String("id", ev.ID),
		zap.String("component", ev.Component),
		zap.String("severity", ev.Severity))
	return nil
}

func (p *PubSubService) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
