package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"annopedia/internal/types"

	"github.com/google/uuid"
)

const annotatorSelect = `SELECT a.id, a.kind, a.contributor_id, a.project_id, a.inviting_contributor_id,
	a.token, a.created_at, a.updated_at,
	c.id, c.username, c.email, c.is_active, c.created_at, c.updated_at
	FROM annotators a JOIN contributors c ON c.id = a.contributor_id`

func scanAnnotator(row interface{ Scan(...interface{}) error }) (*types.Annotator, error) {
	var a types.Annotator
	var c types.Contributor
	var kind string
	var projectID, invitingID sql.NullInt64
	var token sql.NullString
	var created, updated, cCreated, cUpdated string
	if err := row.Scan(&a.ID, &kind, &a.ContributorID, &projectID, &invitingID,
		&token, &created, &updated,
		&c.ID, &c.Username, &c.Email, &c.Active, &cCreated, &cUpdated); err != nil {
		return nil, err
	}
	a.Kind = types.AnnotatorKind(kind)
	a.ProjectID = projectID.Int64
	a.InvitingContributorID = invitingID.Int64
	a.Token = token.String
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	c.CreatedAt = parseTime(cCreated)
	c.UpdatedAt = parseTime(cUpdated)
	a.Contributor = &c
	return &a, nil
}

// NewToken returns a fresh private annotator token: 32 lowercase hex chars.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetAnnotator returns an annotator by id.
func (s *Store) GetAnnotator(ctx context.Context, id int64) (*types.Annotator, error) {
	a, err := scanAnnotator(s.db.QueryRowContext(ctx, annotatorSelect+" WHERE a.id = ?", id))
	if err != nil {
		return nil, notFound(err, "get annotator")
	}
	return a, nil
}

// GetOrCreatePublicAnnotator returns the single public annotator of a
// contributor, creating it on first use.
func (s *Store) GetOrCreatePublicAnnotator(ctx context.Context, contributorID int64) (*types.Annotator, error) {
	query := annotatorSelect + " WHERE a.kind = ? AND a.contributor_id = ? ORDER BY a.id LIMIT 1"
	a, err := scanAnnotator(s.db.QueryRowContext(ctx, query, string(types.AnnotatorPublic), contributorID))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get public annotator: %w", err)
	}

	ts := now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO annotators (kind, contributor_id, created_at, updated_at) VALUES (?, ?, ?, ?)",
		string(types.AnnotatorPublic), contributorID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create public annotator: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read annotator id: %w", err)
	}
	return s.GetAnnotator(ctx, id)
}

// CreatePrivateAnnotator invites a contributor to a project. A contributor
// can be invited once per project; a second invitation returns ErrDuplicate.
func (s *Store) CreatePrivateAnnotator(ctx context.Context, projectID, contributorID, invitingID int64) (*types.Annotator, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM annotators WHERE kind = ? AND project_id = ? AND contributor_id = ?",
			string(types.AnnotatorPrivate), projectID, contributorID).Scan(&n); err != nil {
			return fmt.Errorf("failed to check invitation: %w", err)
		}
		if n > 0 {
			return ErrDuplicate
		}

		ts := now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO annotators (kind, contributor_id, project_id, inviting_contributor_id, token, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(types.AnnotatorPrivate), contributorID, projectID, invitingID, NewToken(), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create private annotator: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetAnnotator(ctx, id)
}

// GetPrivateAnnotatorByToken resolves a private annotator token.
func (s *Store) GetPrivateAnnotatorByToken(ctx context.Context, token string) (*types.Annotator, error) {
	query := annotatorSelect + " WHERE a.kind = ? AND a.token = ?"
	a, err := scanAnnotator(s.db.QueryRowContext(ctx, query, string(types.AnnotatorPrivate), token))
	if err != nil {
		return nil, notFound(err, "get private annotator")
	}
	return a, nil
}

// GetPrivateAnnotator returns the private annotator of a project whose
// contributor has the given username.
func (s *Store) GetPrivateAnnotator(ctx context.Context, projectID int64, username string) (*types.Annotator, error) {
	query := annotatorSelect + " WHERE a.kind = ? AND a.project_id = ? AND c.username = ?"
	a, err := scanAnnotator(s.db.QueryRowContext(ctx, query, string(types.AnnotatorPrivate), projectID, username))
	if err != nil {
		return nil, notFound(err, "get private annotator")
	}
	return a, nil
}

// ListPrivateAnnotators returns the private annotators of a project in id order.
func (s *Store) ListPrivateAnnotators(ctx context.Context, projectID int64) ([]*types.Annotator, error) {
	query := annotatorSelect + " WHERE a.kind = ? AND a.project_id = ? ORDER BY a.id"
	rows, err := s.db.QueryContext(ctx, query, string(types.AnnotatorPrivate), projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list private annotators: %w", err)
	}
	defer rows.Close()

	var out []*types.Annotator
	for rows.Next() {
		a, err := scanAnnotator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotator: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
