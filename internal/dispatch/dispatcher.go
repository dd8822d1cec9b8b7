package dispatch

import (
	"context"
	"fmt"

	"github.com/voxbridge/relay-service/pkg/logger"
	"go.uber.org/zap"
)

// ChatSender delivers to the bot platform.
type ChatSender interface {
	SendText(ctx context.Context, chatID, text string) error
	SendVoice(ctx context.Context, chatID string, audio []byte) error
}

// PhoneSender delivers to the business-messaging platform.
type PhoneSender interface {
	SendText(ctx context.Context, phone, text string) error
	SendMedia(ctx context.Context, phone, mediaID, mediaType string) error
	SendVoice(ctx context.Context, phone string, audio []byte) error
}

// Synthesizer converts reply text to a voice payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Broker mints meeting links and provider call sessions.
type Broker interface {
	MeetingLink(ctx context.Context, chatHistory string, record bool) (string, error)
	CreateCall(ctx context.Context, calleePhone, callType string, record bool) (string, error)
}

// Alerter receives best-effort operational notifications.
type Alerter interface {
	Notify(ctx context.Context, msg string)
}

// Dispatcher decides, given a reply and a target, which downstream calls
// to make and in what order. Each dispatch is a single-pass decision tree;
// no state survives between invocations.
type Dispatcher struct {
	chat   ChatSender
	phone  PhoneSender
	synth  Synthesizer
	broker Broker
	alerts Alerter
}

func New(chat ChatSender, phone PhoneSender, synth Synthesizer, broker Broker, alerts Alerter) *Dispatcher {
	return &Dispatcher{
		chat:   chat,
		phone:  phone,
		synth:  synth,
		broker: broker,
		alerts: alerts,
	}
}

// Dispatch delivers reply according to target. Destinations are always
// attempted independently: a failure on one never suppresses the other.
func (d *Dispatcher) Dispatch(ctx context.Context, reply string, target Target) Result {
	if err := target.Validate(); err != nil {
		return Result{Mode: target.Mode, Err: err}
	}

	switch {
	case target.Mode == ModeVideoCall:
		return d.dispatchVideoCall(ctx, reply, target)
	case target.Mode == ModeVoice:
		return d.dispatchVoice(ctx, reply, target)
	case target.Mode == ModeMedia && target.MediaID != "" && validMediaType(target.MediaType):
		return d.dispatchMedia(ctx, reply, target)
	default:
		// Plain text, including media requests missing an id or type.
		return d.dispatchText(ctx, reply, target)
	}
}

// dispatchVideoCall brokers a meeting link for the chat destination and a
// provider call session for the phone destination.
func (d *Dispatcher) dispatchVideoCall(ctx context.Context, reply string, target Target) Result {
	result := Result{Mode: ModeVideoCall}

	if target.ChatID != "" {
		result.Chat.Attempted = true
		invite, err := d.broker.MeetingLink(ctx, reply, target.Record)
		if err == nil {
			err = d.chat.SendText(ctx, target.ChatID, invite)
		}
		if err != nil {
			result.Chat.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Video call link delivery failed for chat %s: %v", target.ChatID, err))
		}
	}

	if target.PhoneNumber != "" {
		result.Phone.Attempted = true
		callID, err := d.broker.CreateCall(ctx, target.PhoneNumber, target.CallType, target.Record)
		if err == nil {
			confirmation := fmt.Sprintf("Video call initiated (recording: %t): %s", target.Record, callID)
			err = d.phone.SendText(ctx, target.PhoneNumber, confirmation)
		}
		if err != nil {
			result.Phone.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Call session failed for %s: %v", target.PhoneNumber, err))
		}
	}

	d.logResult(target, result)
	return result
}

// dispatchVoice synthesizes the reply and delivers the audio. A synthesis
// failure is a hard stop: no text fallback is sent in the same dispatch,
// only an alert. Call sites that want graceful degradation do it above
// this layer.
func (d *Dispatcher) dispatchVoice(ctx context.Context, reply string, target Target) Result {
	result := Result{Mode: ModeVoice}

	audio, err := d.synth.Synthesize(ctx, reply)
	if err != nil {
		d.alerts.Notify(ctx, fmt.Sprintf("Speech synthesis failed for %s: %v", target.destination(), err))
		result.Err = err
		return result
	}

	if target.ChatID != "" {
		result.Chat.Attempted = true
		if err := d.chat.SendVoice(ctx, target.ChatID, audio); err != nil {
			result.Chat.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Voice delivery failed for chat %s: %v", target.ChatID, err))
		}
	}

	if target.PhoneNumber != "" {
		result.Phone.Attempted = true
		if err := d.phone.SendVoice(ctx, target.PhoneNumber, audio); err != nil {
			result.Phone.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Voice delivery failed for %s: %v", target.PhoneNumber, err))
		}
	}

	d.logResult(target, result)
	return result
}

// dispatchMedia delivers the media object to the phone destination; the
// bot platform has no media path in this mode, so a chat destination
// still receives the reply text.
func (d *Dispatcher) dispatchMedia(ctx context.Context, reply string, target Target) Result {
	result := Result{Mode: ModeMedia}

	if target.ChatID != "" {
		result.Chat.Attempted = true
		if err := d.chat.SendText(ctx, target.ChatID, reply); err != nil {
			result.Chat.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Text delivery failed for chat %s: %v", target.ChatID, err))
		}
	}

	if target.PhoneNumber != "" {
		result.Phone.Attempted = true
		if err := d.phone.SendMedia(ctx, target.PhoneNumber, target.MediaID, target.MediaType); err != nil {
			result.Phone.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Media delivery failed for %s: %v", target.PhoneNumber, err))
		}
	}

	d.logResult(target, result)
	return result
}

func (d *Dispatcher) dispatchText(ctx context.Context, reply string, target Target) Result {
	result := Result{Mode: ModeText}

	if target.ChatID != "" {
		result.Chat.Attempted = true
		if err := d.chat.SendText(ctx, target.ChatID, reply); err != nil {
			result.Chat.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Text delivery failed for chat %s: %v", target.ChatID, err))
		}
	}

	if target.PhoneNumber != "" {
		result.Phone.Attempted = true
		if err := d.phone.SendText(ctx, target.PhoneNumber, reply); err != nil {
			result.Phone.Err = err
			d.alerts.Notify(ctx, fmt.Sprintf("Text delivery failed for %s: %v", target.PhoneNumber, err))
		}
	}

	d.logResult(target, result)
	return result
}

func (t Target) destination() string {
	if t.ChatID != "" {
		return t.ChatID
	}
	return t.PhoneNumber
}

func (d *Dispatcher) logResult(target Target, result Result) {
	logger.Base().Info("dispatch finished",
		zap.String("mode", string(result.Mode)),
		zap.String("chat_id", target.ChatID),
		zap.String("phone", target.PhoneNumber),
		zap.Bool("chat_attempted", result.Chat.Attempted),
		zap.Bool("phone_attempted", result.Phone.Attempted),
		zap.Bool("delivered", result.Delivered()))
}
