package types

import "time"

// Role identifies the author of a conversation message.
type Role string

// Message role constants
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects the response style for a conversation turn.
type Mode string

// Conversation mode constants
const (
	// ModeChat produces full conversational replies.
	ModeChat Mode = "chat"

	// ModeVoice produces terse replies suitable for speech synthesis
	// (one or two sentences) and lowers the generation tier.
	ModeVoice Mode = "voice"
)

// Tier selects the generation-service complexity level for a request.
type Tier string

// Generation tier constants
const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Message is one turn of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RouteResult is the outcome of routing one user utterance: the generated
// (or canned) response plus turn metadata. Error is set only for genuinely
// unexpected conditions; Response still carries a user-safe message then.
type RouteResult struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	Mode           string `json:"mode"`
	Error          string `json:"error,omitempty"`
}
