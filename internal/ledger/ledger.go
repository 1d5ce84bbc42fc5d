// Package ledger implements the conversation and usage ledger on top of
// a storage backend: validation, the error taxonomy, and usage
// accounting on message inserts.
package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/pricing"
	"github.com/chatvault/chatvault/internal/storage"
)

// ConversationFinder resolves a free-text query to the conversations
// whose messages match it. Implemented by the search index.
type ConversationFinder interface {
	ConversationIDs(ctx context.Context, query string, limit int) ([]int64, error)
}

type Ledger struct {
	store  storage.Storage
	finder ConversationFinder
	logger *zap.Logger
}

func New(store storage.Storage, finder ConversationFinder, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, finder: finder, logger: logger}
}

func (l *Ledger) CreateConversation(ctx context.Context, platform models.Platform, model, title string, folderID *int64) (*models.Conversation, error) {
	if !platform.Valid() {
		return nil, models.Validationf("unknown platform %q", platform)
	}
	if model == "" {
		return nil, models.Validationf("model is required")
	}
	if folderID != nil {
		if _, err := l.store.GetFolder(ctx, *folderID); err != nil {
			return nil, err
		}
	}

	conv := &models.Conversation{
		Platform: platform,
		Model:    model,
		Title:    title,
		FolderID: folderID,
	}
	if err := l.store.CreateConversation(ctx, conv); err != nil {
		l.logger.Error("Failed to create conversation", zap.Error(err))
		return nil, err
	}
	return conv, nil
}

// AppendMessage records one turn. When tokens is non-nil the usage
// accountant attaches a cost from the pricing table; a pair missing
// from the table yields zero cost with Priced=false.
func (l *Ledger) AppendMessage(ctx context.Context, conversationID int64, role models.Role, content string, metadata map[string]any, tokens *int64) (*models.Message, error) {
	if !role.Valid() {
		return nil, models.Validationf("unknown role %q", role)
	}
	if content == "" {
		return nil, models.Validationf("message content is required")
	}
	if tokens != nil && *tokens < 0 {
		return nil, models.Validationf("token count must not be negative")
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
	}
	if tokens != nil {
		conv, err := l.store.GetConversation(ctx, conversationID, false)
		if err != nil {
			return nil, err
		}
		cost, priced := pricing.Cost(conv.Platform, conv.Model, *tokens)
		msg.Tokens = tokens
		msg.Cost = &cost
		msg.Priced = priced
		if !priced {
			l.logger.Warn("No pricing for platform/model pair",
				zap.String("platform", string(conv.Platform)),
				zap.String("model", conv.Model))
		}
	}

	if err := l.store.AppendMessage(ctx, msg); err != nil {
		if !models.IsNotFound(err) {
			l.logger.Error("Failed to append message",
				zap.Error(err),
				zap.Int64("conversation_id", conversationID))
		}
		return nil, err
	}
	return msg, nil
}

func (l *Ledger) GetConversation(ctx context.Context, id int64, includeMessages bool) (*models.Conversation, error) {
	return l.store.GetConversation(ctx, id, includeMessages)
}

// CompareConversations fetches the named conversations with their
// messages for a side-by-side view. Ids that do not resolve are
// skipped rather than failing the whole set.
func (l *Ledger) CompareConversations(ctx context.Context, ids []int64) ([]*models.Conversation, error) {
	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := l.GetConversation(ctx, id, true)
		if models.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// ListFilter narrows a conversation listing. Search matches message
// content through the search index.
type ListFilter struct {
	Platform models.Platform
	Model    string
	FolderID *int64
	Search   string
	Page     int
	PerPage  int
}

const defaultPerPage = 20

func (l *Ledger) ListConversations(ctx context.Context, f ListFilter) ([]*models.Conversation, error) {
	if f.Platform != "" && !f.Platform.Valid() {
		return nil, models.Validationf("unknown platform %q", f.Platform)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}

	sf := storage.ConversationFilter{
		Platform: f.Platform,
		Model:    f.Model,
		FolderID: f.FolderID,
		Limit:    f.PerPage,
		Offset:   (f.Page - 1) * f.PerPage,
	}
	if f.Search != "" {
		ids, err := l.finder.ConversationIDs(ctx, f.Search, 0)
		if err != nil {
			return nil, err
		}
		sf.IDs = ids
	}
	return l.store.ListConversations(ctx, sf)
}

// UpdateConversationParams is a partial update; nil fields are left
// alone. A nil TagIDs keeps tags, an empty slice clears them.
type UpdateConversationParams struct {
	Title     *string
	FolderID  *int64
	SetFolder bool
	TagIDs    []int64
}

func (l *Ledger) UpdateConversation(ctx context.Context, id int64, p UpdateConversationParams) (*models.Conversation, error) {
	if p.SetFolder && p.FolderID != nil {
		if _, err := l.store.GetFolder(ctx, *p.FolderID); err != nil {
			return nil, err
		}
	}
	if p.TagIDs != nil {
		if err := l.verifyTags(ctx, p.TagIDs); err != nil {
			return nil, err
		}
	}

	upd := storage.ConversationUpdate{Title: p.Title, FolderID: p.FolderID, SetFolder: p.SetFolder}
	if err := l.store.UpdateConversation(ctx, id, upd); err != nil {
		return nil, err
	}
	if p.TagIDs != nil {
		if err := l.store.SetConversationTags(ctx, id, p.TagIDs); err != nil {
			return nil, err
		}
	}
	return l.store.GetConversation(ctx, id, false)
}

func (l *Ledger) DeleteConversation(ctx context.Context, id int64) error {
	return l.store.DeleteConversation(ctx, id)
}

// ConversationTotals derives token and cost sums from the message rows.
func (l *Ledger) ConversationTotals(ctx context.Context, id int64) (models.Totals, error) {
	return l.store.ConversationTotals(ctx, id)
}

// ImportMessage is one turn of a bulk import payload.
type ImportMessage struct {
	Role     models.Role
	Content  string
	Tokens   *int64
	Metadata map[string]any
}

// ImportConversation creates a conversation plus its message batch as
// one unit. Costs are recomputed from the current pricing table rather
// than trusted from the payload.
func (l *Ledger) ImportConversation(ctx context.Context, platform models.Platform, model, title string, folderID *int64, messages []ImportMessage) (*models.Conversation, error) {
	if !platform.Valid() {
		return nil, models.Validationf("unknown platform %q", platform)
	}
	if model == "" {
		return nil, models.Validationf("model is required")
	}
	if folderID != nil {
		if _, err := l.store.GetFolder(ctx, *folderID); err != nil {
			return nil, err
		}
	}

	msgs := make([]*models.Message, 0, len(messages))
	for i, im := range messages {
		if !im.Role.Valid() {
			return nil, models.Validationf("message %d: unknown role %q", i, im.Role)
		}
		if im.Content == "" {
			return nil, models.Validationf("message %d: content is required", i)
		}
		if im.Tokens != nil && *im.Tokens < 0 {
			return nil, models.Validationf("message %d: token count must not be negative", i)
		}
		m := &models.Message{Role: im.Role, Content: im.Content, Metadata: im.Metadata}
		if im.Tokens != nil {
			cost, priced := pricing.Cost(platform, model, *im.Tokens)
			m.Tokens = im.Tokens
			m.Cost = &cost
			m.Priced = priced
		}
		msgs = append(msgs, m)
	}

	conv := &models.Conversation{Platform: platform, Model: model, Title: title, FolderID: folderID}
	if err := l.store.ImportConversation(ctx, conv, msgs); err != nil {
		l.logger.Error("Failed to import conversation", zap.Error(err))
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (l *Ledger) verifyTags(ctx context.Context, tagIDs []int64) error {
	tags, err := l.store.ListTags(ctx)
	if err != nil {
		return err
	}
	known := make(map[int64]struct{}, len(tags))
	for _, t := range tags {
		known[t.ID] = struct{}{}
	}
	for _, id := range tagIDs {
		if _, ok := known[id]; !ok {
			return &models.NotFoundError{Entity: "tag", ID: id}
		}
	}
	return nil
}
