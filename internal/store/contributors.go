package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"annopedia/internal/types"
)

const contributorColumns = "id, username, email, is_active, created_at, updated_at"

func scanContributor(row interface{ Scan(...interface{}) error }) (*types.Contributor, error) {
	var c types.Contributor
	var created, updated string
	if err := row.Scan(&c.ID, &c.Username, &c.Email, &c.Active, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// GetOrCreateContributor returns the contributor with the given username,
// creating it with email when absent. An existing contributor keeps its email.
func (s *Store) GetOrCreateContributor(ctx context.Context, username, email string) (*types.Contributor, error) {
	c, err := s.GetContributorByUsername(ctx, username)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoRows) {
		return nil, err
	}

	ts := now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO contributors (username, email, is_active, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?) ON CONFLICT(username) DO NOTHING`,
		username, email, ts, ts); err != nil {
		return nil, fmt.Errorf("failed to create contributor: %w", err)
	}
	return s.GetContributorByUsername(ctx, username)
}

// GetContributor returns a contributor by id.
func (s *Store) GetContributor(ctx context.Context, id int64) (*types.Contributor, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+contributorColumns+" FROM contributors WHERE id = ?", id)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err, "get contributor")
	}
	return c, nil
}

// GetContributorByUsername returns a contributor by username.
func (s *Store) GetContributorByUsername(ctx context.Context, username string) (*types.Contributor, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+contributorColumns+" FROM contributors WHERE username = ?", username)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err, "get contributor")
	}
	return c, nil
}

// GetContributorByEmail returns the oldest contributor with the given email.
func (s *Store) GetContributorByEmail(ctx context.Context, email string) (*types.Contributor, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+contributorColumns+" FROM contributors WHERE email = ? ORDER BY id LIMIT 1", email)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err, "get contributor by email")
	}
	return c, nil
}

// GetContributorByUsernameEmail returns the contributor matching both fields.
func (s *Store) GetContributorByUsernameEmail(ctx context.Context, username, email string) (*types.Contributor, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+contributorColumns+" FROM contributors WHERE username = ? AND email = ?", username, email)
	c, err := scanContributor(row)
	if err != nil {
		return nil, notFound(err, "get contributor")
	}
	return c, nil
}

// SetContributorActive toggles whether a contributor may authenticate.
func (s *Store) SetContributorActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE contributors SET is_active = ?, updated_at = ? WHERE id = ?", active, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update contributor: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}
