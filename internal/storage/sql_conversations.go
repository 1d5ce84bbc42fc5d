package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const conversationColumns = `c.id, c.platform, c.model, c.title, c.folder_id, c.created_at, c.updated_at,
	COALESCE(SUM(m.tokens), 0), COALESCE(SUM(m.cost), 0)`

const conversationGroupBy = `c.id, c.platform, c.model, c.title, c.folder_id, c.created_at, c.updated_at`

func (s *SQLStorage) CreateConversation(ctx context.Context, c *models.Conversation) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO conversations (platform, model, title, folder_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		c.Platform, c.Model, nullString(c.Title), c.FolderID, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return storageErr("create conversation", err)
	}
	return nil
}

func (s *SQLStorage) GetConversation(ctx context.Context, id int64, includeMessages bool) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+conversationColumns+`
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.id = ?
		GROUP BY `+conversationGroupBy),
		id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "conversation", ID: id}
	}
	if err != nil {
		return nil, storageErr("get conversation", err)
	}

	tags, err := s.tagsFor(ctx, []int64{id})
	if err != nil {
		return nil, storageErr("get conversation tags", err)
	}
	conv.Tags = tags[id]

	if includeMessages {
		msgs, err := s.messagesFor(ctx, id)
		if err != nil {
			return nil, storageErr("get conversation messages", err)
		}
		conv.Messages = msgs
	}
	return conv, nil
}

func (s *SQLStorage) ListConversations(ctx context.Context, f ConversationFilter) ([]*models.Conversation, error) {
	var where []string
	var args []any

	if f.Platform != "" {
		where = append(where, "c.platform = ?")
		args = append(args, f.Platform)
	}
	if f.Model != "" {
		where = append(where, "c.model = ?")
		args = append(args, f.Model)
	}
	if f.FolderID != nil {
		where = append(where, "c.folder_id = ?")
		args = append(args, *f.FolderID)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return []*models.Conversation{}, nil
		}
		where = append(where, "c.id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += `
		GROUP BY ` + conversationGroupBy + `
		ORDER BY c.updated_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	defer rows.Close()

	conversations := []*models.Conversation{}
	var ids []int64
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, storageErr("scan conversation", err)
		}
		conversations = append(conversations, conv)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list conversations", err)
	}

	if len(ids) > 0 {
		tags, err := s.tagsFor(ctx, ids)
		if err != nil {
			return nil, storageErr("list conversation tags", err)
		}
		for _, conv := range conversations {
			conv.Tags = tags[conv.ID]
		}
	}
	return conversations, nil
}

func (s *SQLStorage) UpdateConversation(ctx context.Context, id int64, upd ConversationUpdate) error {
	var set []string
	var args []any

	if upd.Title != nil {
		set = append(set, "title = ?")
		args = append(args, nullString(*upd.Title))
	}
	if upd.SetFolder {
		set = append(set, "folder_id = ?")
		args = append(args, upd.FolderID)
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE conversations SET "+strings.Join(set, ", ")+" WHERE id = ?"),
		args...)
	if err != nil {
		return storageErr("update conversation", err)
	}
	return requireAffected(result, "conversation", id, "update conversation")
}

func (s *SQLStorage) DeleteConversation(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM conversations WHERE id = ?"), id)
	if err != nil {
		return storageErr("delete conversation", err)
	}
	return requireAffected(result, "conversation", id, "delete conversation")
}

func (s *SQLStorage) AppendMessage(ctx context.Context, m *models.Message) error {
	m.CreatedAt = time.Now().UTC()

	return s.inTxMapped(ctx, "append message", func(tx *sql.Tx) error {
		var exists int64
		err := tx.QueryRowContext(ctx,
			s.rebind("SELECT id FROM conversations WHERE id = ?"),
			m.ConversationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotFoundError{Entity: "conversation", ID: m.ConversationID}
		}
		if err != nil {
			return err
		}

		if err := s.insertMessage(ctx, tx, m); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			s.rebind("UPDATE conversations SET updated_at = ? WHERE id = ?"),
			m.CreatedAt, m.ConversationID)
		return err
	})
}

func (s *SQLStorage) ImportConversation(ctx context.Context, c *models.Conversation, msgs []*models.Message) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.inTxMapped(ctx, "import conversation", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.rebind(`
			INSERT INTO conversations (platform, model, title, folder_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`),
			c.Platform, c.Model, nullString(c.Title), c.FolderID, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		if err != nil {
			return err
		}

		for _, m := range msgs {
			m.ConversationID = c.ID
			m.CreatedAt = time.Now().UTC()
			if err := s.insertMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStorage) SetConversationTags(ctx context.Context, id int64, tagIDs []int64) error {
	return s.inTxMapped(ctx, "set conversation tags", func(tx *sql.Tx) error {
		var exists int64
		err := tx.QueryRowContext(ctx,
			s.rebind("SELECT id FROM conversations WHERE id = ?"), id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotFoundError{Entity: "conversation", ID: id}
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			s.rebind("DELETE FROM conversation_tags WHERE conversation_id = ?"), id); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx,
				s.rebind("INSERT INTO conversation_tags (conversation_id, tag_id) VALUES (?, ?)"),
				id, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStorage) insertMessage(ctx context.Context, q querier, m *models.Message) error {
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return q.QueryRowContext(ctx, s.rebind(`
		INSERT INTO messages (conversation_id, role, content, tokens, cost, priced, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		m.ConversationID, m.Role, m.Content, m.Tokens, m.Cost, m.Priced, meta, m.CreatedAt,
	).Scan(&m.ID)
}

func (s *SQLStorage) messagesFor(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, conversation_id, role, content, tokens, cost, priced, metadata, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`),
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStorage) tagsFor(ctx context.Context, conversationIDs []int64) (map[int64][]models.Tag, error) {
	args := make([]any, len(conversationIDs))
	for i, id := range conversationIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT ct.conversation_id, t.id, t.name, t.color, t.created_at
		FROM conversation_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.conversation_id IN (`+placeholders(len(conversationIDs))+`)
		ORDER BY t.name ASC`),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make(map[int64][]models.Tag)
	for rows.Next() {
		var convID int64
		var t models.Tag
		if err := rows.Scan(&convID, &t.ID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		tags[convID] = append(tags[convID], t)
	}
	return tags, rows.Err()
}

// inTxMapped wraps non-domain errors from fn in a StorageError.
func (s *SQLStorage) inTxMapped(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	err := s.inTx(ctx, fn)
	if err == nil || models.IsNotFound(err) || models.IsValidation(err) {
		return err
	}
	return storageErr(op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var title sql.NullString
	err := row.Scan(&c.ID, &c.Platform, &c.Model, &title, &c.FolderID,
		&c.CreatedAt, &c.UpdatedAt, &c.TotalTokens, &c.TotalCost)
	if err != nil {
		return nil, err
	}
	c.Title = title.String
	return &c, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var meta sql.NullString
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
		&m.Tokens, &m.Cost, &m.Priced, &meta, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Metadata, err = decodeMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(result sql.Result, entity string, id int64, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if affected == 0 {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
