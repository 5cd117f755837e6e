package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"annopedia/internal/types"
)

const entrySelect = `SELECT e.id, e.project_id, e.source_id, e.annotator_id, e.category_id, COALESCE(cat.name, ''),
	e.adequacy, e.fluency, e.created_at, e.updated_at,
	t.text, t.mt_system_translation, t.context, t.pre_category_id, COALESCE(pc.name, ''),
	t.pre_adequacy, t.pre_fluency, t.created_at, t.updated_at,
	a.kind, a.contributor_id, ctr.username, ctr.email
	FROM entries e
	JOIN imported_texts t ON t.id = e.source_id
	JOIN annotators a ON a.id = e.annotator_id
	JOIN contributors ctr ON ctr.id = a.contributor_id
	LEFT JOIN categories cat ON cat.id = e.category_id
	LEFT JOIN categories pc ON pc.id = t.pre_category_id`

func scanEntry(row interface{ Scan(...interface{}) error }) (*types.Entry, error) {
	var e types.Entry
	var src types.ImportedText
	var ann types.Annotator
	var ctr types.Contributor

	var category sql.NullInt64
	var adequacy, fluency sql.NullFloat64
	var created, updated string
	var srcContext sql.NullString
	var preCategory sql.NullInt64
	var preAdequacy, preFluency sql.NullFloat64
	var srcCreated, srcUpdated string
	var kind string

	if err := row.Scan(&e.ID, &e.ProjectID, &e.SourceID, &e.AnnotatorID, &category, &e.Category,
		&adequacy, &fluency, &created, &updated,
		&src.Text, &src.MTSystemTranslation, &srcContext, &preCategory, &src.PreCategory,
		&preAdequacy, &preFluency, &srcCreated, &srcUpdated,
		&kind, &ann.ContributorID, &ctr.Username, &ctr.Email); err != nil {
		return nil, err
	}

	e.CategoryID = intPtr(category)
	e.Adequacy = floatPtr(adequacy)
	e.Fluency = floatPtr(fluency)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)

	src.ID = e.SourceID
	src.ProjectID = e.ProjectID
	src.Context = stringPtr(srcContext)
	src.PreCategoryID = intPtr(preCategory)
	src.PreAdequacy = floatPtr(preAdequacy)
	src.PreFluency = floatPtr(preFluency)
	src.CreatedAt = parseTime(srcCreated)
	src.UpdatedAt = parseTime(srcUpdated)
	e.Source = &src

	ctr.ID = ann.ContributorID
	ann.ID = e.AnnotatorID
	ann.Kind = types.AnnotatorKind(kind)
	ann.Contributor = &ctr
	e.Annotator = &ann
	return &e, nil
}

// queryEntries loads entries and then their highlights. Rows are drained
// before the highlight query runs because the pool holds one connection.
func queryEntries(ctx context.Context, q querier, query string, args ...interface{}) ([]*types.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachHighlights(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// highlightBatch caps the entry ids bound in one highlight query. SQLite
// limits the number of variables per statement.
var highlightBatch = 500

func attachHighlights(ctx context.Context, q querier, entries []*types.Entry) error {
	byID := make(map[int64]*types.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	for start := 0; start < len(entries); start += highlightBatch {
		end := min(start+highlightBatch, len(entries))
		if err := loadHighlights(ctx, q, byID, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// loadHighlights appends the highlights of batch to the entries in byID.
func loadHighlights(ctx context.Context, q querier, byID map[int64]*types.Entry, batch []*types.Entry) error {
	placeholders := make([]string, len(batch))
	args := make([]interface{}, len(batch))
	for i, e := range batch {
		placeholders[i] = "?"
		args[i] = e.ID
	}

	rows, err := q.QueryContext(ctx,
		`SELECT entry_id, side, span_start, span_end, label, category_id FROM highlights
		 WHERE entry_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load highlights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID int64
		var h types.Highlight
		var side string
		var category sql.NullInt64
		if err := rows.Scan(&entryID, &side, &h.Start, &h.End, &h.Label, &category); err != nil {
			return fmt.Errorf("failed to scan highlight: %w", err)
		}
		h.Side = types.HighlightSide(side)
		h.CategoryID = intPtr(category)
		if e, ok := byID[entryID]; ok {
			e.Highlights = append(e.Highlights, h)
		}
	}
	return rows.Err()
}

func getEntry(ctx context.Context, q querier, projectID, id int64) (*types.Entry, error) {
	entries, err := queryEntries(ctx, q, entrySelect+" WHERE e.project_id = ? AND e.id = ?", projectID, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoRows
	}
	return entries[0], nil
}

// GetEntry returns an entry of a project with its source, annotator and highlights.
func (s *Store) GetEntry(ctx context.Context, projectID, id int64) (*types.Entry, error) {
	return getEntry(ctx, s.db, projectID, id)
}

// ListEntries returns the entries of a project in id order.
func (s *Store) ListEntries(ctx context.Context, projectID int64) ([]*types.Entry, error) {
	return queryEntries(ctx, s.db, entrySelect+" WHERE e.project_id = ? ORDER BY e.id", projectID)
}

// ListAnnotatorEntries returns the entries one annotator made in a project.
func (s *Store) ListAnnotatorEntries(ctx context.Context, projectID, annotatorID int64) ([]*types.Entry, error) {
	return queryEntries(ctx, s.db,
		entrySelect+" WHERE e.project_id = ? AND e.annotator_id = ? ORDER BY e.id", projectID, annotatorID)
}

// CreateEntry stores an entry with its highlights and records its first
// history snapshot in the same transaction.
func (s *Store) CreateEntry(ctx context.Context, e *types.Entry) (*types.Entry, error) {
	var created *types.Entry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO entries (project_id, source_id, annotator_id, category_id, adequacy, fluency, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ProjectID, e.SourceID, e.AnnotatorID, nullInt(e.CategoryID), nullFloat(e.Adequacy), nullFloat(e.Fluency), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read entry id: %w", err)
		}
		for _, h := range e.Highlights {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO highlights (entry_id, side, span_start, span_end, label, category_id)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, string(h.Side), h.Start, h.End, h.Label, nullInt(h.CategoryID)); err != nil {
				return fmt.Errorf("failed to insert highlight: %w", err)
			}
		}

		if created, err = getEntry(ctx, tx, e.ProjectID, id); err != nil {
			return err
		}
		return recordHistory(ctx, tx, created, types.HistoryCreated)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEntry persists the value fields of e and records a history snapshot.
// Highlights are not changed.
func (s *Store) UpdateEntry(ctx context.Context, e *types.Entry) (*types.Entry, error) {
	var updated *types.Entry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET category_id = ?, adequacy = ?, fluency = ?, updated_at = ?
			 WHERE project_id = ? AND id = ?`,
			nullInt(e.CategoryID), nullFloat(e.Adequacy), nullFloat(e.Fluency), now(), e.ProjectID, e.ID)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if updated, err = getEntry(ctx, tx, e.ProjectID, e.ID); err != nil {
			return err
		}
		return recordHistory(ctx, tx, updated, types.HistoryUpdated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEntry removes an entry and its highlights. The final snapshot is
// kept in history.
func (s *Store) DeleteEntry(ctx context.Context, projectID, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := getEntry(ctx, tx, projectID, id)
		if err != nil {
			return err
		}
		if err := recordHistory(ctx, tx, e, types.HistoryDeleted); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		return nil
	})
}
