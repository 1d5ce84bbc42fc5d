package models

import "time"

// Totals is the aggregate token and cost figure for one conversation.
type Totals struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// ConversationUsage is one row of the usage read model: a conversation
// together with its message count and summed tokens/cost. Conversations
// with no messages appear with zeroed figures.
type ConversationUsage struct {
	ConversationID int64
	Platform       Platform
	Model          string
	CreatedAt      time.Time
	Messages       int64
	Tokens         int64
	Cost           float64
}
