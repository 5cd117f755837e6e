package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"annopedia/internal/types"
)

const categoryColumns = "id, project_id, name, description, key_binding, created_at, updated_at"

func scanCategory(row interface{ Scan(...interface{}) error }) (*types.Category, error) {
	var c types.Category
	var created, updated string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.KeyBinding, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// CreateCategory adds a category to a project. Names are unique per project;
// a second category with the same name returns ErrDuplicate.
func (s *Store) CreateCategory(ctx context.Context, c *types.Category) (*types.Category, error) {
	if _, err := s.GetCategoryByName(ctx, c.ProjectID, c.Name); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, ErrNoRows) {
		return nil, err
	}

	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (project_id, name, description, key_binding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.Name, c.Description, c.KeyBinding, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read category id: %w", err)
	}
	return s.GetCategory(ctx, c.ProjectID, id)
}

// GetCategory returns a category of a project by id.
func (s *Store) GetCategory(ctx context.Context, projectID, id int64) (*types.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE project_id = ? AND id = ?", projectID, id)
	c, err := scanCategory(row)
	if err != nil {
		return nil, notFound(err, "get category")
	}
	return c, nil
}

// GetCategoryByName returns a category of a project by its exact name.
func (s *Store) GetCategoryByName(ctx context.Context, projectID int64, name string) (*types.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE project_id = ? AND name = ?", projectID, name)
	c, err := scanCategory(row)
	if err != nil {
		return nil, notFound(err, "get category")
	}
	return c, nil
}

// ListCategories returns the categories of a project in id order.
func (s *Store) ListCategories(ctx context.Context, projectID int64) ([]*types.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*types.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes a category. It returns ErrInUse while any entry or
// highlight references it. Pre-annotations pointing at it are cleared.
func (s *Store) DeleteCategory(ctx context.Context, projectID, id int64) (*types.Category, error) {
	c, err := s.GetCategory(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var uses int
		if err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM entries WHERE category_id = ?)
			      + (SELECT COUNT(*) FROM highlights WHERE category_id = ?)`, id, id).Scan(&uses); err != nil {
			return fmt.Errorf("failed to count category uses: %w", err)
		}
		if uses > 0 {
			return ErrInUse
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE imported_texts SET pre_category_id = NULL WHERE pre_category_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear pre-annotations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
