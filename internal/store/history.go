package store

import (
	"context"
	"encoding/json"
	"fmt"

	"annopedia/internal/types"

	"github.com/tidwall/gjson"
)

type highlightSnapshot struct {
	Side       string `json:"side"`
	Start      int    `json:"span_start"`
	End        int    `json:"span_end"`
	Label      string `json:"label"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

type entrySnapshot struct {
	ID                int64               `json:"id"`
	Project           int64               `json:"project"`
	UnannotatedSource int64               `json:"unannotated_source"`
	Annotator         int64               `json:"annotator"`
	CategoryID        *int64              `json:"category_id"`
	Category          string              `json:"category,omitempty"`
	Adequacy          *float64            `json:"adequacy"`
	Fluency           *float64            `json:"fluency"`
	Highlights        []highlightSnapshot `json:"highlights"`
	CreatedAt         string              `json:"created_at"`
	UpdatedAt         string              `json:"updated_at"`
}

func snapshotOf(e *types.Entry) ([]byte, error) {
	snap := entrySnapshot{
		ID:                e.ID,
		Project:           e.ProjectID,
		UnannotatedSource: e.SourceID,
		Annotator:         e.AnnotatorID,
		CategoryID:        e.CategoryID,
		Category:          e.Category,
		Adequacy:          e.Adequacy,
		Fluency:           e.Fluency,
		Highlights:        make([]highlightSnapshot, 0, len(e.Highlights)),
		CreatedAt:         e.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:         e.UpdatedAt.UTC().Format(timeLayout),
	}
	for _, h := range e.Highlights {
		snap.Highlights = append(snap.Highlights, highlightSnapshot{
			Side:       string(h.Side),
			Start:      h.Start,
			End:        h.End,
			Label:      h.Label,
			CategoryID: h.CategoryID,
		})
	}
	return json.Marshal(snap)
}

func recordHistory(ctx context.Context, q querier, e *types.Entry, change types.HistoryChange) error {
	snap, err := snapshotOf(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry snapshot: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO entry_history (entry_id, project_id, change, snapshot, recorded_at) VALUES (?, ?, ?, ?, ?)",
		e.ID, e.ProjectID, string(change), string(snap), now()); err != nil {
		return fmt.Errorf("failed to record entry history: %w", err)
	}
	return nil
}

// ListEntryHistory returns the snapshots recorded for an entry, oldest first.
// History outlives the entry itself.
func (s *Store) ListEntryHistory(ctx context.Context, projectID, entryID int64) ([]*types.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, project_id, change, snapshot, recorded_at FROM entry_history
		 WHERE project_id = ? AND entry_id = ? ORDER BY id`, projectID, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry history: %w", err)
	}
	defer rows.Close()

	var out []*types.HistoryRecord
	for rows.Next() {
		var r types.HistoryRecord
		var change, snap, recorded string
		if err := rows.Scan(&r.ID, &r.EntryID, &r.ProjectID, &change, &snap, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan entry history: %w", err)
		}
		r.Change = types.HistoryChange(change)
		r.RecordedAt = parseTime(recorded)
		if m, ok := gjson.Parse(snap).Value().(map[string]interface{}); ok {
			r.Snapshot = m
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
