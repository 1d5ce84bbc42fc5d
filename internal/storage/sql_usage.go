package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/chatvault/chatvault/internal/models"
)

func (s *SQLStorage) ConversationTotals(ctx context.Context, id int64) (models.Totals, error) {
	var exists int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id FROM conversations WHERE id = ?"), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Totals{}, &models.NotFoundError{Entity: "conversation", ID: id}
	}
	if err != nil {
		return models.Totals{}, storageErr("conversation totals", err)
	}

	var t models.Totals
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(SUM(tokens), 0), COALESCE(SUM(cost), 0)
		FROM messages
		WHERE conversation_id = ?`),
		id,
	).Scan(&t.Tokens, &t.Cost)
	if err != nil {
		return models.Totals{}, storageErr("conversation totals", err)
	}
	return t, nil
}

func (s *SQLStorage) ConversationUsage(ctx context.Context) ([]models.ConversationUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.platform, c.model, c.created_at,
		       COUNT(m.id), COALESCE(SUM(m.tokens), 0), COALESCE(SUM(m.cost), 0)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id, c.platform, c.model, c.created_at
		ORDER BY c.created_at ASC, c.id ASC`)
	if err != nil {
		return nil, storageErr("conversation usage", err)
	}
	defer rows.Close()

	usage := []models.ConversationUsage{}
	for rows.Next() {
		var u models.ConversationUsage
		if err := rows.Scan(&u.ConversationID, &u.Platform, &u.Model, &u.CreatedAt,
			&u.Messages, &u.Tokens, &u.Cost); err != nil {
			return nil, storageErr("scan conversation usage", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func (s *SQLStorage) SearchMessages(ctx context.Context, terms []string, limit int) ([]*models.Message, error) {
	if len(terms) == 0 {
		return []*models.Message{}, nil
	}

	var where []string
	var args []any
	for _, term := range terms {
		where = append(where, `LOWER(content) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, conversation_id, role, content, tokens, cost, priced, metadata, created_at
		FROM messages
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`),
		args...)
	if err != nil {
		return nil, storageErr("search messages", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, storageErr("scan search result", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// escapeLike neutralizes LIKE wildcards in user input; the queries
// declare backslash as the escape character so this works on both
// engines.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
