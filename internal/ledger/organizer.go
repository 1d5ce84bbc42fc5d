package ledger

import (
	"context"

	"github.com/chatvault/chatvault/internal/models"
)

const (
	defaultFolderColor = "#667eea"
	defaultTagColor    = "#6c757d"
)

func (l *Ledger) CreateFolder(ctx context.Context, name, color string, parentID *int64) (*models.Folder, error) {
	if name == "" {
		return nil, models.Validationf("folder name is required")
	}
	if color == "" {
		color = defaultFolderColor
	}
	if parentID != nil {
		if _, err := l.store.GetFolder(ctx, *parentID); err != nil {
			return nil, err
		}
	}

	f := &models.Folder{Name: name, Color: color, ParentID: parentID}
	if err := l.store.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Ledger) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	return l.store.ListFolders(ctx)
}

// UpdateFolderParams is a partial update; SetParent distinguishes
// "move to top level" from "leave the parent alone".
type UpdateFolderParams struct {
	Name      *string
	Color     *string
	ParentID  *int64
	SetParent bool
}

func (l *Ledger) UpdateFolder(ctx context.Context, id int64, p UpdateFolderParams) (*models.Folder, error) {
	f, err := l.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if *p.Name == "" {
			return nil, models.Validationf("folder name is required")
		}
		f.Name = *p.Name
	}
	if p.Color != nil {
		f.Color = *p.Color
	}
	if p.SetParent {
		if p.ParentID != nil {
			if err := l.checkFolderCycle(ctx, id, *p.ParentID); err != nil {
				return nil, err
			}
		}
		f.ParentID = p.ParentID
	}

	if err := l.store.UpdateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Ledger) DeleteFolder(ctx context.Context, id int64) error {
	return l.store.DeleteFolder(ctx, id)
}

// checkFolderCycle rejects a parent assignment that would make the
// folder an ancestor of itself.
func (l *Ledger) checkFolderCycle(ctx context.Context, id, newParentID int64) error {
	if newParentID == id {
		return models.Validationf("folder cannot be its own parent")
	}
	current := newParentID
	for {
		parent, err := l.store.GetFolder(ctx, current)
		if err != nil {
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		if *parent.ParentID == id {
			return models.Validationf("folder move would create a cycle")
		}
		current = *parent.ParentID
	}
}

// CreateTag returns the existing tag when the name is already taken
// instead of failing on the unique constraint.
func (l *Ledger) CreateTag(ctx context.Context, name, color string) (*models.Tag, error) {
	if name == "" {
		return nil, models.Validationf("tag name is required")
	}
	if existing, err := l.store.GetTagByName(ctx, name); err == nil {
		return existing, nil
	} else if !models.IsNotFound(err) {
		return nil, err
	}

	if color == "" {
		color = defaultTagColor
	}
	t := &models.Tag{Name: name, Color: color}
	if err := l.store.CreateTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (l *Ledger) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return l.store.ListTags(ctx)
}

type UpdateTagParams struct {
	Name  *string
	Color *string
}

func (l *Ledger) UpdateTag(ctx context.Context, id int64, p UpdateTagParams) (*models.Tag, error) {
	t, err := l.store.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		if *p.Name == "" {
			return nil, models.Validationf("tag name is required")
		}
		t.Name = *p.Name
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if err := l.store.UpdateTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (l *Ledger) DeleteTag(ctx context.Context, id int64) error {
	return l.store.DeleteTag(ctx, id)
}
