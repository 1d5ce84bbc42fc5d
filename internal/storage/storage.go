package storage

import (
	"context"

	"github.com/chatvault/chatvault/internal/models"
)

// ConversationFilter narrows a conversation listing. All set fields are
// combined with AND. IDs restricts results to the given conversations
// (used by the search index); a nil slice means no restriction.
type ConversationFilter struct {
	Platform models.Platform
	Model    string
	FolderID *int64
	IDs      []int64
	Limit    int
	Offset   int
}

// ConversationUpdate is a partial update. Nil Title leaves the title
// untouched; SetFolder distinguishes "move to no folder" from "leave
// the folder alone".
type ConversationUpdate struct {
	Title     *string
	FolderID  *int64
	SetFolder bool
}

type ConversationStorage interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id int64, includeMessages bool) (*models.Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]*models.Conversation, error)
	UpdateConversation(ctx context.Context, id int64, upd ConversationUpdate) error
	DeleteConversation(ctx context.Context, id int64) error

	// AppendMessage inserts the message and bumps the conversation's
	// updated_at to the message's created_at, atomically.
	AppendMessage(ctx context.Context, m *models.Message) error

	// ImportConversation creates the conversation and its message batch
	// as one all-or-nothing unit.
	ImportConversation(ctx context.Context, c *models.Conversation, msgs []*models.Message) error

	SetConversationTags(ctx context.Context, id int64, tagIDs []int64) error
}

type OrganizerStorage interface {
	CreateFolder(ctx context.Context, f *models.Folder) error
	GetFolder(ctx context.Context, id int64) (*models.Folder, error)
	ListFolders(ctx context.Context) ([]*models.Folder, error)
	UpdateFolder(ctx context.Context, f *models.Folder) error

	// DeleteFolder nulls out folder_id on conversations in the folder
	// and re-parents child folders to the deleted folder's parent.
	// Conversations are never deleted by folder removal.
	DeleteFolder(ctx context.Context, id int64) error

	CreateTag(ctx context.Context, t *models.Tag) error
	GetTag(ctx context.Context, id int64) (*models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	ListTags(ctx context.Context) ([]*models.Tag, error)
	UpdateTag(ctx context.Context, t *models.Tag) error
	DeleteTag(ctx context.Context, id int64) error
}

type KeyStorage interface {
	// UpsertAPIKey replaces the key for the platform if one exists,
	// reactivating it, and creates it otherwise.
	UpsertAPIKey(ctx context.Context, k *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	SetAPIKeyActive(ctx context.Context, id int64, active bool) error
	DeleteAPIKey(ctx context.Context, id int64) error
	ActiveAPIKey(ctx context.Context, platform models.Platform) (*models.APIKey, error)
}

type UsageStorage interface {
	// ConversationTotals derives token and cost sums from the message
	// rows of one conversation.
	ConversationTotals(ctx context.Context, id int64) (models.Totals, error)

	// ConversationUsage returns one row per conversation with summed
	// message figures, ordered by created_at then id.
	ConversationUsage(ctx context.Context) ([]models.ConversationUsage, error)

	// SearchMessages returns messages whose content contains every term
	// (case-insensitive), newest first, capped at limit.
	SearchMessages(ctx context.Context, terms []string, limit int) ([]*models.Message, error)
}

// Storage is the full persistence contract of the ledger.
type Storage interface {
	ConversationStorage
	OrganizerStorage
	KeyStorage
	UsageStorage
	Close() error
}
