package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

func (s *SQLStorage) CreateFolder(ctx context.Context, f *models.Folder) error {
	f.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO folders (name, color, parent_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		f.Name, f.Color, f.ParentID, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		return storageErr("create folder", err)
	}
	return nil
}

func (s *SQLStorage) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	var f models.Folder
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, color, parent_id, created_at FROM folders WHERE id = ?`),
		id,
	).Scan(&f.ID, &f.Name, &f.Color, &f.ParentID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "folder", ID: id}
	}
	if err != nil {
		return nil, storageErr("get folder", err)
	}
	return &f, nil
}

func (s *SQLStorage) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, color, parent_id, created_at FROM folders ORDER BY name ASC, id ASC")
	if err != nil {
		return nil, storageErr("list folders", err)
	}
	defer rows.Close()

	folders := []*models.Folder{}
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Color, &f.ParentID, &f.CreatedAt); err != nil {
			return nil, storageErr("scan folder", err)
		}
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

func (s *SQLStorage) UpdateFolder(ctx context.Context, f *models.Folder) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE folders SET name = ?, color = ?, parent_id = ? WHERE id = ?`),
		f.Name, f.Color, f.ParentID, f.ID)
	if err != nil {
		return storageErr("update folder", err)
	}
	return requireAffected(result, "folder", f.ID, "update folder")
}

func (s *SQLStorage) DeleteFolder(ctx context.Context, id int64) error {
	return s.inTxMapped(ctx, "delete folder", func(tx *sql.Tx) error {
		var parentID *int64
		err := tx.QueryRowContext(ctx,
			s.rebind("SELECT parent_id FROM folders WHERE id = ?"), id).Scan(&parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotFoundError{Entity: "folder", ID: id}
		}
		if err != nil {
			return err
		}

		// Conversations drop out of the folder; child folders move up.
		if _, err := tx.ExecContext(ctx,
			s.rebind("UPDATE conversations SET folder_id = NULL WHERE folder_id = ?"), id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("UPDATE folders SET parent_id = ? WHERE parent_id = ?"), parentID, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind("DELETE FROM folders WHERE id = ?"), id)
		return err
	})
}

func (s *SQLStorage) CreateTag(ctx context.Context, t *models.Tag) error {
	t.CreatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO tags (name, color, created_at)
		VALUES (?, ?, ?)
		RETURNING id`),
		t.Name, t.Color, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return storageErr("create tag", err)
	}
	return nil
}

func (s *SQLStorage) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	var t models.Tag
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, color, created_at FROM tags WHERE id = ?`),
		id,
	).Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "tag", ID: id}
	}
	if err != nil {
		return nil, storageErr("get tag", err)
	}
	return &t, nil
}

func (s *SQLStorage) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var t models.Tag
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, color, created_at FROM tags WHERE name = ?`),
		name,
	).Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "tag", ID: 0}
	}
	if err != nil {
		return nil, storageErr("get tag", err)
	}
	return &t, nil
}

func (s *SQLStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, color, created_at FROM tags ORDER BY name ASC")
	if err != nil {
		return nil, storageErr("list tags", err)
	}
	defer rows.Close()

	tags := []*models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, storageErr("scan tag", err)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

func (s *SQLStorage) UpdateTag(ctx context.Context, t *models.Tag) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tags SET name = ?, color = ? WHERE id = ?`),
		t.Name, t.Color, t.ID)
	if err != nil {
		return storageErr("update tag", err)
	}
	return requireAffected(result, "tag", t.ID, "update tag")
}

func (s *SQLStorage) DeleteTag(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM tags WHERE id = ?"), id)
	if err != nil {
		return storageErr("delete tag", err)
	}
	return requireAffected(result, "tag", id, "delete tag")
}
