package models

import "time"

// Platform identifies an LLM provider.
type Platform string

const (
	PlatformOpenAI    Platform = "openai"
	PlatformAnthropic Platform = "anthropic"
	PlatformGoogle    Platform = "google"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{PlatformOpenAI, PlatformAnthropic, PlatformGoogle}
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformOpenAI, PlatformAnthropic, PlatformGoogle:
		return true
	}
	return false
}

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Conversation is a recorded exchange with a single provider/model.
// TotalTokens and TotalCost are derived from the message rows, never
// stored separately.
type Conversation struct {
	ID          int64      `json:"id"`
	Platform    Platform   `json:"platform"`
	Model       string     `json:"model"`
	Title       string     `json:"title,omitempty"`
	FolderID    *int64     `json:"folder_id,omitempty"`
	TotalTokens int64      `json:"total_tokens"`
	TotalCost   float64    `json:"total_cost"`
	Tags        []Tag      `json:"tags,omitempty"`
	Messages    []*Message `json:"messages,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Message is a single turn within a conversation. Tokens and Cost are
// only set when the provider reported usage figures; Priced is false
// when the cost fell back to a zero rate because the (platform, model)
// pair is missing from the pricing table.
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Tokens         *int64         `json:"tokens,omitempty"`
	Cost           *float64       `json:"cost,omitempty"`
	Priced         bool           `json:"priced"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
