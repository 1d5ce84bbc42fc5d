package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// MemoryStorage is an ephemeral Storage used for tests and local runs.
// A single mutex serializes writes, which stands in for the SQL
// engine's transaction isolation.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[int64]*models.Conversation
	messages      map[int64]*models.Message
	folders       map[int64]*models.Folder
	tags          map[int64]*models.Tag
	links         map[int64]map[int64]struct{} // conversation id -> tag ids
	keys          map[int64]*models.APIKey

	nextConversationID int64
	nextMessageID      int64
	nextFolderID       int64
	nextTagID          int64
	nextKeyID          int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[int64]*models.Conversation),
		messages:      make(map[int64]*models.Message),
		folders:       make(map[int64]*models.Folder),
		tags:          make(map[int64]*models.Tag),
		links:         make(map[int64]map[int64]struct{}),
		keys:          make(map[int64]*models.APIKey),
	}
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConversationID++
	now := time.Now().UTC()
	c.ID = s.nextConversationID
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	stored.Messages = nil
	stored.Tags = nil
	s.conversations[c.ID] = &stored
	s.links[c.ID] = make(map[int64]struct{})
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id int64, includeMessages bool) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.conversations[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "conversation", ID: id}
	}
	conv := s.snapshot(stored)
	if includeMessages {
		conv.Messages = s.orderedMessages(id)
	}
	return conv, nil
}

func (s *MemoryStorage) ListConversations(ctx context.Context, f ConversationFilter) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allowed map[int64]struct{}
	if f.IDs != nil {
		allowed = make(map[int64]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			allowed[id] = struct{}{}
		}
	}

	result := []*models.Conversation{}
	for _, c := range s.conversations {
		if f.Platform != "" && c.Platform != f.Platform {
			continue
		}
		if f.Model != "" && c.Model != f.Model {
			continue
		}
		if f.FolderID != nil && (c.FolderID == nil || *c.FolderID != *f.FolderID) {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[c.ID]; !ok {
				continue
			}
		}
		result = append(result, s.snapshot(c))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if f.Limit > 0 {
		if f.Offset >= len(result) {
			return []*models.Conversation{}, nil
		}
		end := f.Offset + f.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[f.Offset:end]
	}
	return result, nil
}

func (s *MemoryStorage) UpdateConversation(ctx context.Context, id int64, upd ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return &models.NotFoundError{Entity: "conversation", ID: id}
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.SetFolder {
		c.FolderID = upd.FolderID
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStorage) DeleteConversation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return &models.NotFoundError{Entity: "conversation", ID: id}
	}
	delete(s.conversations, id)
	delete(s.links, id)
	for msgID, m := range s.messages {
		if m.ConversationID == id {
			delete(s.messages, msgID)
		}
	}
	return nil
}

func (s *MemoryStorage) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return &models.NotFoundError{Entity: "conversation", ID: m.ConversationID}
	}

	s.nextMessageID++
	m.ID = s.nextMessageID
	m.CreatedAt = time.Now().UTC()
	stored := *m
	s.messages[m.ID] = &stored
	c.UpdatedAt = m.CreatedAt
	return nil
}

func (s *MemoryStorage) ImportConversation(ctx context.Context, c *models.Conversation, msgs []*models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextConversationID++
	now := time.Now().UTC()
	c.ID = s.nextConversationID
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	stored.Messages = nil
	stored.Tags = nil
	s.conversations[c.ID] = &stored
	s.links[c.ID] = make(map[int64]struct{})

	for _, m := range msgs {
		s.nextMessageID++
		m.ID = s.nextMessageID
		m.ConversationID = c.ID
		m.CreatedAt = time.Now().UTC()
		copied := *m
		s.messages[m.ID] = &copied
	}
	return nil
}

func (s *MemoryStorage) SetConversationTags(ctx context.Context, id int64, tagIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return &models.NotFoundError{Entity: "conversation", ID: id}
	}
	linked := make(map[int64]struct{}, len(tagIDs))
	for _, tagID := range tagIDs {
		if _, ok := s.tags[tagID]; !ok {
			return &models.NotFoundError{Entity: "tag", ID: tagID}
		}
		linked[tagID] = struct{}{}
	}
	s.links[id] = linked
	return nil
}

func (s *MemoryStorage) CreateFolder(ctx context.Context, f *models.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFolderID++
	f.ID = s.nextFolderID
	f.CreatedAt = time.Now().UTC()
	stored := *f
	s.folders[f.ID] = &stored
	return nil
}

func (s *MemoryStorage) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.folders[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "folder", ID: id}
	}
	copied := *f
	return &copied, nil
}

func (s *MemoryStorage) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folders := []*models.Folder{}
	for _, f := range s.folders {
		copied := *f
		folders = append(folders, &copied)
	}
	sort.Slice(folders, func(i, j int) bool {
		if folders[i].Name != folders[j].Name {
			return folders[i].Name < folders[j].Name
		}
		return folders[i].ID < folders[j].ID
	})
	return folders, nil
}

func (s *MemoryStorage) UpdateFolder(ctx context.Context, f *models.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.folders[f.ID]
	if !ok {
		return &models.NotFoundError{Entity: "folder", ID: f.ID}
	}
	stored.Name = f.Name
	stored.Color = f.Color
	stored.ParentID = f.ParentID
	return nil
}

func (s *MemoryStorage) DeleteFolder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, ok := s.folders[id]
	if !ok {
		return &models.NotFoundError{Entity: "folder", ID: id}
	}
	for _, c := range s.conversations {
		if c.FolderID != nil && *c.FolderID == id {
			c.FolderID = nil
		}
	}
	for _, f := range s.folders {
		if f.ParentID != nil && *f.ParentID == id {
			f.ParentID = folder.ParentID
		}
	}
	delete(s.folders, id)
	return nil
}

func (s *MemoryStorage) CreateTag(ctx context.Context, t *models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTagID++
	t.ID = s.nextTagID
	t.CreatedAt = time.Now().UTC()
	stored := *t
	s.tags[t.ID] = &stored
	return nil
}

func (s *MemoryStorage) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tags[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "tag", ID: id}
	}
	copied := *t
	return &copied, nil
}

func (s *MemoryStorage) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tags {
		if t.Name == name {
			copied := *t
			return &copied, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "tag", ID: 0}
}

func (s *MemoryStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := []*models.Tag{}
	for _, t := range s.tags {
		copied := *t
		tags = append(tags, &copied)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (s *MemoryStorage) UpdateTag(ctx context.Context, t *models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tags[t.ID]
	if !ok {
		return &models.NotFoundError{Entity: "tag", ID: t.ID}
	}
	stored.Name = t.Name
	stored.Color = t.Color
	return nil
}

func (s *MemoryStorage) DeleteTag(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		return &models.NotFoundError{Entity: "tag", ID: id}
	}
	delete(s.tags, id)
	for _, linked := range s.links {
		delete(linked, id)
	}
	return nil
}

func (s *MemoryStorage) UpsertAPIKey(ctx context.Context, k *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys {
		if existing.Platform == k.Platform {
			existing.Secret = k.Secret
			existing.IsActive = true
			k.ID = existing.ID
			k.IsActive = true
			k.CreatedAt = existing.CreatedAt
			return nil
		}
	}

	s.nextKeyID++
	k.ID = s.nextKeyID
	k.IsActive = true
	k.CreatedAt = time.Now().UTC()
	stored := *k
	s.keys[k.ID] = &stored
	return nil
}

func (s *MemoryStorage) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []*models.APIKey{}
	for _, k := range s.keys {
		copied := *k
		keys = append(keys, &copied)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Platform < keys[j].Platform })
	return keys, nil
}

func (s *MemoryStorage) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return &models.NotFoundError{Entity: "api key", ID: id}
	}
	k.IsActive = active
	return nil
}

func (s *MemoryStorage) DeleteAPIKey(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[id]; !ok {
		return &models.NotFoundError{Entity: "api key", ID: id}
	}
	delete(s.keys, id)
	return nil
}

func (s *MemoryStorage) ActiveAPIKey(ctx context.Context, platform models.Platform) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.keys {
		if k.Platform == platform && k.IsActive {
			copied := *k
			return &copied, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "api key", ID: 0}
}

func (s *MemoryStorage) ConversationTotals(ctx context.Context, id int64) (models.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[id]; !ok {
		return models.Totals{}, &models.NotFoundError{Entity: "conversation", ID: id}
	}
	var t models.Totals
	for _, m := range s.messages {
		if m.ConversationID != id {
			continue
		}
		if m.Tokens != nil {
			t.Tokens += *m.Tokens
		}
		if m.Cost != nil {
			t.Cost += *m.Cost
		}
	}
	return t, nil
}

func (s *MemoryStorage) ConversationUsage(ctx context.Context) ([]models.ConversationUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage := []models.ConversationUsage{}
	for _, c := range s.conversations {
		u := models.ConversationUsage{
			ConversationID: c.ID,
			Platform:       c.Platform,
			Model:          c.Model,
			CreatedAt:      c.CreatedAt,
		}
		for _, m := range s.messages {
			if m.ConversationID != c.ID {
				continue
			}
			u.Messages++
			if m.Tokens != nil {
				u.Tokens += *m.Tokens
			}
			if m.Cost != nil {
				u.Cost += *m.Cost
			}
		}
		usage = append(usage, u)
	}
	sort.Slice(usage, func(i, j int) bool {
		if !usage[i].CreatedAt.Equal(usage[j].CreatedAt) {
			return usage[i].CreatedAt.Before(usage[j].CreatedAt)
		}
		return usage[i].ConversationID < usage[j].ConversationID
	})
	return usage, nil
}

func (s *MemoryStorage) SearchMessages(ctx context.Context, terms []string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(terms) == 0 {
		return []*models.Message{}, nil
	}

	matched := []*models.Message{}
	for _, m := range s.messages {
		content := strings.ToLower(m.Content)
		all := true
		for _, term := range terms {
			if !strings.Contains(content, strings.ToLower(term)) {
				all = false
				break
			}
		}
		if all {
			copied := *m
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// snapshot copies a conversation and fills derived totals and tags.
// Caller must hold at least the read lock.
func (s *MemoryStorage) snapshot(c *models.Conversation) *models.Conversation {
	copied := *c
	copied.Messages = nil
	copied.Tags = nil

	for _, m := range s.messages {
		if m.ConversationID != c.ID {
			continue
		}
		if m.Tokens != nil {
			copied.TotalTokens += *m.Tokens
		}
		if m.Cost != nil {
			copied.TotalCost += *m.Cost
		}
	}
	for tagID := range s.links[c.ID] {
		if t, ok := s.tags[tagID]; ok {
			copied.Tags = append(copied.Tags, *t)
		}
	}
	sort.Slice(copied.Tags, func(i, j int) bool { return copied.Tags[i].Name < copied.Tags[j].Name })
	return &copied
}

// orderedMessages returns the conversation's messages sorted by
// created_at then id. Caller must hold at least the read lock.
func (s *MemoryStorage) orderedMessages(conversationID int64) []*models.Message {
	var messages []*models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			copied := *m
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages
}
