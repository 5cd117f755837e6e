package store

import (
	"context"
	"database/sql"
	"fmt"

	"annopedia/internal/logging"
	"annopedia/internal/types"
)

const importedSelect = `SELECT t.id, t.project_id, t.text, t.mt_system_translation, t.context,
	t.pre_category_id, COALESCE(pc.name, ''), t.pre_adequacy, t.pre_fluency, t.created_at, t.updated_at
	FROM imported_texts t LEFT JOIN categories pc ON pc.id = t.pre_category_id`

func scanImported(row interface{ Scan(...interface{}) error }) (*types.ImportedText, error) {
	var t types.ImportedText
	var textContext sql.NullString
	var preCategory sql.NullInt64
	var preAdequacy, preFluency sql.NullFloat64
	var created, updated string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Text, &t.MTSystemTranslation, &textContext,
		&preCategory, &t.PreCategory, &preAdequacy, &preFluency, &created, &updated); err != nil {
		return nil, err
	}
	t.Context = stringPtr(textContext)
	t.PreCategoryID = intPtr(preCategory)
	t.PreAdequacy = floatPtr(preAdequacy)
	t.PreFluency = floatPtr(preFluency)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func (s *Store) queryImported(ctx context.Context, query string, args ...interface{}) ([]*types.ImportedText, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list imported texts: %w", err)
	}
	defer rows.Close()

	var out []*types.ImportedText
	for rows.Next() {
		t, err := scanImported(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan imported text: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertImportedTexts stores a batch of imported texts for a project in a
// single transaction. Either every text is stored or none is.
func (s *Store) InsertImportedTexts(ctx context.Context, projectID int64, texts []*types.ImportedText) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "InsertImportedTexts")
	defer timer.Stop()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO imported_texts (project_id, text, mt_system_translation, context,
			 pre_category_id, pre_adequacy, pre_fluency, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare import: %w", err)
		}
		defer stmt.Close()

		ts := now()
		for i, t := range texts {
			if _, err := stmt.ExecContext(ctx, projectID, t.Text, t.MTSystemTranslation, nullString(t.Context),
				nullInt(t.PreCategoryID), nullFloat(t.PreAdequacy), nullFloat(t.PreFluency), ts, ts); err != nil {
				return fmt.Errorf("failed to insert imported text %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		logging.StoreError("Import into project %d rolled back: %v", projectID, err)
		return 0, err
	}
	logging.StoreDebug("Imported %d texts into project %d", len(texts), projectID)
	return len(texts), nil
}

// GetImportedText returns an imported text of a project by id.
func (s *Store) GetImportedText(ctx context.Context, projectID, id int64) (*types.ImportedText, error) {
	t, err := scanImported(s.db.QueryRowContext(ctx,
		importedSelect+" WHERE t.project_id = ? AND t.id = ?", projectID, id))
	if err != nil {
		return nil, notFound(err, "get imported text")
	}
	return t, nil
}

// ListImportedTexts returns the imported texts of a project in id order.
func (s *Store) ListImportedTexts(ctx context.Context, projectID int64) ([]*types.ImportedText, error) {
	return s.queryImported(ctx, importedSelect+" WHERE t.project_id = ? ORDER BY t.id", projectID)
}

// ListUnannotatedTexts returns the imported texts of a project the given
// annotator has not annotated yet, in id order.
func (s *Store) ListUnannotatedTexts(ctx context.Context, projectID, annotatorID int64) ([]*types.ImportedText, error) {
	return s.queryImported(ctx, importedSelect+`
		WHERE t.project_id = ?
		  AND NOT EXISTS (SELECT 1 FROM entries e WHERE e.source_id = t.id AND e.annotator_id = ?)
		ORDER BY t.id`, projectID, annotatorID)
}

// DeleteImportedText removes an imported text and the entries annotating it.
func (s *Store) DeleteImportedText(ctx context.Context, projectID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM imported_texts WHERE project_id = ? AND id = ?", projectID, id)
	if err != nil {
		return fmt.Errorf("failed to delete imported text: %w", err)
	}
	return requireAffected(res)
}
