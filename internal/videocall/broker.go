package videocall

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// placeholderContext is used verbatim when no chat history is supplied;
// summarization is skipped entirely in that case.
const placeholderContext = "Ready for video call."

// roomTokenTTL bounds how long a minted room token stays joinable.
const roomTokenTTL = 2 * time.Hour

// Querier produces a text completion. The broker uses it to summarize chat
// history into a human-readable invite context.
type Querier interface {
	Query(ctx context.Context, prompt, mediaURL string, maxTokens int) (string, error)
}

// CallCreator requests a call session from the business-messaging provider.
type CallCreator interface {
	CreateCall(ctx context.Context, calleePhone, callType string, record bool) (string, error)
}

// Broker mints joinable meeting links for the bot platform and brokers
// provider call sessions for the business API.
type Broker struct {
	domain    string
	appID     string
	appSecret string
	ai        Querier
	calls     CallCreator
}

// NewBroker creates a call broker. appID/appSecret are optional; when both
// are set every minted link carries a signed room token for moderated
// deployments.
func NewBroker(domain, appID, appSecret string, ai Querier, calls CallCreator) *Broker {
	return &Broker{
		domain:    domain,
		appID:     appID,
		appSecret: appSecret,
		ai:        ai,
		calls:     calls,
	}
}

// RoomLink builds a joinable room URL. Deterministic except for the random
// room identifier when no seed is given; pure string construction, cannot
// fail.
func (b *Broker) RoomLink(seedRoom string, record bool) string {
	room := seedRoom
	if room == "" {
		room = uuid.New().String()[:8]
	}

	link := fmt.Sprintf("https://%s/%s", b.domain, room)
	sep := "?"
	if record {
		link += sep + "record=true"
		sep = "&"
	}
	if b.appID != "" && b.appSecret != "" {
		token, err := b.roomToken(room)
		if err != nil {
			logger.Base().Warn("room token signing failed, link issued without token", zap.Error(err))
		} else {
			link += sep + "jwt=" + token
		}
	}
	return link
}

// roomToken signs an HS256 join token scoped to one room.
func (b *Broker) roomToken(room string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud":  "jitsi",
		"iss":  b.appID,
		"sub":  b.domain,
		"room": room,
		"iat":  now.Unix(),
		"exp":  now.Add(roomTokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(b.appSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign room token: %w", err)
	}
	return signed, nil
}

// MeetingLink composes the full invite message: a context line derived from
// the chat history followed by the join link. An empty history uses the
// static placeholder; a failed summarization degrades to it too.
func (b *Broker) MeetingLink(ctx context.Context, chatHistory string, record bool) (string, error) {
	callContext := placeholderContext
	if chatHistory != "" {
		summary, err := b.ai.Query(ctx,
			fmt.Sprintf("Summarize this chat history for an upcoming video call: %s", chatHistory), "", 0)
		if err != nil {
			logger.Base().Warn("call context summarization failed, using placeholder", zap.Error(err))
		} else {
			callContext = summary
		}
	}

	link := b.RoomLink("", record)
	logger.Base().Info("meeting link minted",
		zap.Bool("record", record),
		zap.Int("context_length", len(callContext)))

	if record {
		return fmt.Sprintf("%s\nJoin (recording enabled): %s", callContext, link), nil
	}
	return fmt.Sprintf("%s\nJoin: %s", callContext, link), nil
}

// CreateCall requests a call session from the provider and returns the
// opaque session identifier.
func (b *Broker) CreateCall(ctx context.Context, calleePhone, callType string, record bool) (string, error) {
	return b.calls.CreateCall(ctx, calleePhone, callType, record)
}
