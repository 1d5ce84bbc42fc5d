package models

import "time"

// Folder groups conversations. ParentID forms a forest; cycle checks
// happen at update time in the ledger, not here.
type Folder struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a user-defined label, many-to-many with conversations.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey holds a provider credential. The secret is never serialized
// in read responses.
type APIKey struct {
	ID        int64     `json:"id"`
	Platform  Platform  `json:"platform"`
	Secret    string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
