package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CategoryCount is the number of uses of one category.
type CategoryCount struct {
	Name  string
	Total int
}

// Averages holds mean annotation scores. A nil field means no entry has a value.
type Averages struct {
	Adequacy *float64
	Fluency  *float64
}

func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// CountEntries returns the number of entries in a project.
func (s *Store) CountEntries(ctx context.Context, projectID int64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM entries WHERE project_id = ?", projectID)
}

// CountImportedTexts returns the number of imported texts in a project.
func (s *Store) CountImportedTexts(ctx context.Context, projectID int64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM imported_texts WHERE project_id = ?", projectID)
}

// CountAnnotatorEntries returns how many distinct imported texts an annotator
// has annotated in a project.
func (s *Store) CountAnnotatorEntries(ctx context.Context, projectID, annotatorID int64) (int, error) {
	return s.count(ctx,
		"SELECT COUNT(DISTINCT source_id) FROM entries WHERE project_id = ? AND annotator_id = ?",
		projectID, annotatorID)
}

// CategoryEntryCounts returns, per category in id order, how many entries
// are classified with it.
func (s *Store) CategoryEntryCounts(ctx context.Context, projectID int64) ([]CategoryCount, error) {
	return s.categoryCounts(ctx,
		`SELECT c.name, COUNT(e.id) FROM categories c
		 LEFT JOIN entries e ON e.category_id = c.id
		 WHERE c.project_id = ? GROUP BY c.id ORDER BY c.id`, projectID)
}

// HighlightCategoryCounts returns, per category in id order, how many
// highlights carry it.
func (s *Store) HighlightCategoryCounts(ctx context.Context, projectID int64) ([]CategoryCount, error) {
	return s.categoryCounts(ctx,
		`SELECT c.name, COUNT(h.id) FROM categories c
		 LEFT JOIN highlights h ON h.category_id = c.id
		 WHERE c.project_id = ? GROUP BY c.id ORDER BY c.id`, projectID)
}

func (s *Store) categoryCounts(ctx context.Context, query string, args ...interface{}) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	out := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Name, &c.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EntryAverages returns the mean adequacy and fluency of a project's entries.
func (s *Store) EntryAverages(ctx context.Context, projectID int64) (Averages, error) {
	var adequacy, fluency sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		"SELECT AVG(adequacy), AVG(fluency) FROM entries WHERE project_id = ?", projectID).
		Scan(&adequacy, &fluency)
	if err != nil {
		return Averages{}, fmt.Errorf("failed to average entries: %w", err)
	}
	return Averages{Adequacy: floatPtr(adequacy), Fluency: floatPtr(fluency)}, nil
}
