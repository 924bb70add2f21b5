package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Instruction kinds carried by system_instruction bubbles.
const (
	InstructionWelcome                = "welcome"
	InstructionVoiceConfirmation      = "voice_confirmation"
	InstructionDateSelection          = "date_selection"
	InstructionPhotoSelection         = "photo_selection"
	InstructionJobPosted              = "job_posted"
	InstructionCompletionConfirmation = "completion_confirmation"
	InstructionOnboardingCode         = "onboarding_code"
	InstructionJobCancelled           = "job_cancelled"
)

const (
	QuickReplyYes = "yes"
	QuickReplyNo  = "no"
)

const (
	WorkerJobViewCategorization = "categorization"
	WorkerJobViewBidding        = "bidding"
	WorkerJobViewStatus         = "status"
)

// BubblePayload is the typed metadata of one bubble_type. Each bubble type
// has exactly one payload shape.
type BubblePayload interface {
	BubbleType() BubbleType
}

type TextPayload struct{}

type VoicePayload struct {
	URL             string `json:"url" validate:"required,url"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
}

type PhotoPayload struct {
	URLs    []string `json:"urls" validate:"max=10,dive,url"`
	Skipped bool     `json:"skipped"`
}

type DatePayload struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type SystemInstructionPayload struct {
	Kind    string   `json:"kind" validate:"required"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Options []string `json:"options,omitempty"`
	JobID   string   `json:"job_id,omitempty"`
	Code    string   `json:"code,omitempty"`
}

type JobPayload struct {
	Job JobSnapshot `json:"job"`
}

type WorkerJobPayload struct {
	Job  JobSnapshot  `json:"job"`
	Bid  *BidSnapshot `json:"bid,omitempty"`
	View string       `json:"view" validate:"oneof=categorization bidding status"`
}

type BidPayload struct {
	Bid BidSnapshot `json:"bid"`
}

type CompletionCodePayload struct {
	JobID string `json:"job_id" validate:"required"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type CodeEntryPayload struct {
	JobID   string `json:"job_id" validate:"required"`
	Purpose string `json:"purpose" validate:"oneof=completion onboarding"`
}

type RatingPromptPayload struct {
	JobID       string     `json:"job_id" validate:"required"`
	RatedUserID string     `json:"rated_user_id" validate:"required"`
	RatingType  RatingType `json:"rating_type" validate:"oneof=customer_to_worker worker_to_customer"`
}

type StatusPayload struct {
	JobID  string    `json:"job_id" validate:"required"`
	Status JobStatus `json:"status" validate:"required"`
}

func (TextPayload) BubbleType() BubbleType              { return BubbleText }
func (VoicePayload) BubbleType() BubbleType             { return BubbleVoice }
func (PhotoPayload) BubbleType() BubbleType             { return BubblePhoto }
func (DatePayload) BubbleType() BubbleType              { return BubbleDate }
func (SystemInstructionPayload) BubbleType() BubbleType { return BubbleSystemInstruction }
func (JobPayload) BubbleType() BubbleType               { return BubbleJob }
func (WorkerJobPayload) BubbleType() BubbleType         { return BubbleWorkerJob }
func (BidPayload) BubbleType() BubbleType               { return BubbleBid }
func (CompletionCodePayload) BubbleType() BubbleType    { return BubbleCompletionCode }
func (CodeEntryPayload) BubbleType() BubbleType         { return BubbleCodeEntry }
func (RatingPromptPayload) BubbleType() BubbleType      { return BubbleRating }
func (StatusPayload) BubbleType() BubbleType            { return BubbleStatus }

var payloadFactories = map[BubbleType]func() BubblePayload{
	BubbleText:              func() BubblePayload { return &TextPayload{} },
	BubbleVoice:             func() BubblePayload { return &VoicePayload{} },
	BubblePhoto:             func() BubblePayload { return &PhotoPayload{} },
	BubbleDate:              func() BubblePayload { return &DatePayload{} },
	BubbleSystemInstruction: func() BubblePayload { return &SystemInstructionPayload{} },
	BubbleJob:               func() BubblePayload { return &JobPayload{} },
	BubbleWorkerJob:         func() BubblePayload { return &WorkerJobPayload{} },
	BubbleBid:               func() BubblePayload { return &BidPayload{} },
	BubbleCompletionCode:    func() BubblePayload { return &CompletionCodePayload{} },
	BubbleCodeEntry:         func() BubblePayload { return &CodeEntryPayload{} },
	BubbleRating:            func() BubblePayload { return &RatingPromptPayload{} },
	BubbleStatus:            func() BubblePayload { return &StatusPayload{} },
}

// Bubble types a participant may author. Everything else is engine-only.
var clientBubbles = map[BubbleType]bool{
	BubbleText:  true,
	BubbleVoice: true,
	BubblePhoto: true,
	BubbleDate:  true,
}

var validate = validator.New()

func IsKnownBubble(bt BubbleType) bool {
	_, ok := payloadFactories[bt]
	return ok
}

func IsClientBubble(bt BubbleType) bool {
	return clientBubbles[bt]
}

// DecodeBubble validates content and metadata against the payload shape of bt.
func DecodeBubble(bt BubbleType, content string, metadata map[string]any) (BubblePayload, error) {
	factory, ok := payloadFactories[bt]
	if !ok {
		return nil, fmt.Errorf("unknown bubble type %q", bt)
	}
	if bt == BubbleText && strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("text message content is empty")
	}
	payload := factory()
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s metadata: %w", bt, err)
		}
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("invalid %s metadata: %w", bt, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", bt, err)
	}
	return payload, nil
}

// EncodeBubble flattens a payload into message metadata.
func EncodeBubble(p BubblePayload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.BubbleType(), err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to flatten %s payload: %w", p.BubbleType(), err)
	}
	return out, nil
}
