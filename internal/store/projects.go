package store

import (
	"context"
	"database/sql"
	"fmt"

	"annopedia/internal/types"

	"github.com/google/uuid"
)

const projectColumns = "id, url, type, name, description, talk_markdown, character_level_selection, created_at, updated_at"

func scanProject(row interface{ Scan(...interface{}) error }) (*types.Project, error) {
	var p types.Project
	var ptype string
	var talk sql.NullString
	var charLevel sql.NullBool
	var created, updated string
	if err := row.Scan(&p.ID, &p.URL, &ptype, &p.Name, &p.Description, &talk, &charLevel, &created, &updated); err != nil {
		return nil, err
	}
	p.Type = types.ProjectType(ptype)
	p.TalkMarkdown = talk.String
	p.CharacterLevel = boolPtr(charLevel)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// CreateProject stores a new project with a fresh UUID url and makes
// adminID its first administrator.
func (s *Store) CreateProject(ctx context.Context, p *types.Project, adminID int64) (*types.Project, error) {
	url := uuid.NewString()
	ts := now()

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO projects (url, type, name, description, talk_markdown, character_level_selection, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			url, string(p.Type), p.Name, p.Description, p.TalkMarkdown, nullBool(p.CharacterLevel), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read project id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO project_administrators (project_id, contributor_id) VALUES (?, ?)", id, adminID); err != nil {
			return fmt.Errorf("failed to add administrator: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "get project")
	}
	return p, nil
}

// GetProjectByURL returns a project by its public url.
func (s *Store) GetProjectByURL(ctx context.Context, url string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE url = ?", url)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "get project")
	}
	return p, nil
}

// ListProjects returns projects in id order, optionally filtered by type.
func (s *Store) ListProjects(ctx context.Context, filter *types.ProjectType) ([]*types.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects"
	var args []interface{}
	if filter != nil {
		query += " WHERE type = ?"
		args = append(args, string(*filter))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject applies the non-nil fields of patch.
func (s *Store) UpdateProject(ctx context.Context, id int64, patch types.ProjectPatch) (*types.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.TalkMarkdown != nil {
		p.TalkMarkdown = *patch.TalkMarkdown
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE projects SET name = ?, description = ?, talk_markdown = ?, updated_at = ? WHERE id = ?",
		p.Name, p.Description, p.TalkMarkdown, now(), id); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and, through cascades, everything it owns.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(res)
}

// =============================================================================
// ADMINISTRATORS
// =============================================================================

// AddAdministrator makes a contributor administrator of a project. Adding an
// existing administrator is a no-op.
func (s *Store) AddAdministrator(ctx context.Context, projectID, contributorID int64) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO project_administrators (project_id, contributor_id) VALUES (?, ?)",
		projectID, contributorID); err != nil {
		return fmt.Errorf("failed to add administrator: %w", err)
	}
	return nil
}

// IsAdministrator reports whether the contributor administers the project.
func (s *Store) IsAdministrator(ctx context.Context, projectID, contributorID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM project_administrators WHERE project_id = ? AND contributor_id = ?",
		projectID, contributorID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check administrator: %w", err)
	}
	return n > 0, nil
}

// ListAdministrators returns the administrators of a project in id order.
func (s *Store) ListAdministrators(ctx context.Context, projectID int64) ([]*types.Contributor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.username, c.email, c.is_active, c.created_at, c.updated_at
		 FROM contributors c JOIN project_administrators pa ON pa.contributor_id = c.id
		 WHERE pa.project_id = ? ORDER BY c.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	defer rows.Close()

	var out []*types.Contributor
	for rows.Next() {
		c, err := scanContributor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan administrator: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
