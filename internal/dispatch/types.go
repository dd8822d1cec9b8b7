package dispatch

import (
	"github.com/voxbridge/relay-service/internal/apierr"
)

// Mode is the mutually exclusive delivery strategy for an outbound reply.
type Mode string

const (
	ModeText      Mode = "text"
	ModeVoice     Mode = "voice"
	ModeMedia     Mode = "media"
	ModeVideoCall Mode = "video-call"
)

// Target describes where and how a reply should be delivered. At least one
// of ChatID / PhoneNumber must be set; when both are, delivery fans out to
// both platforms independently.
type Target struct {
	ChatID      string
	PhoneNumber string
	Mode        Mode
	MediaID     string
	MediaType   string
	CallType    string // "audio" or "video"; only meaningful in video-call mode
	Record      bool
}

// Validate checks the target invariants shared by every mode.
func (t Target) Validate() error {
	if t.ChatID == "" && t.PhoneNumber == "" {
		return apierr.Newf(apierr.KindValidation, "dispatch", "target needs a chat id or a phone number")
	}
	return nil
}

// validMediaType reports whether t is one of the provider-accepted
// outbound media types.
func validMediaType(t string) bool {
	switch t {
	case "image", "video", "document", "audio":
		return true
	}
	return false
}

// Outcome is the per-destination result of one dispatch.
type Outcome struct {
	Attempted bool
	Err       error
}

// Result reports what a dispatch did. Err is set only for pre-delivery
// failures that stop the whole dispatch (voice synthesis); per-destination
// failures live in Chat and Phone so one branch never hides the other.
type Result struct {
	Mode  Mode // effective mode after any fallthrough
	Chat  Outcome
	Phone Outcome
	Err   error
}

// Delivered reports whether at least one destination was attempted and
// succeeded.
func (r Result) Delivered() bool {
	if r.Err != nil {
		return false
	}
	return (r.Chat.Attempted && r.Chat.Err == nil) ||
		(r.Phone.Attempted && r.Phone.Err == nil)
}
