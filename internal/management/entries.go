package management

import (
	"context"
	"errors"

	"annopedia/internal/auth"
	"annopedia/internal/logging"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// CreateEntry stores an annotation of one imported text by the caller.
func (s *Service) CreateEntry(ctx context.Context, caller *auth.Principal, url string, req types.EntryPayload) (map[string]any, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	src, err := s.store.GetImportedText(ctx, p.ID, req.SourceID)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Unannotated source with ID: %d does not exist in project %s", req.SourceID, p.Name)
	}
	if err != nil {
		return nil, err
	}

	e, err := kind.BuildEntry(ctx, s.store, p, src, req.Payload)
	if err != nil {
		return nil, err
	}
	ann, err := s.annotatorFor(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	e.AnnotatorID = ann.ID

	e, err = s.store.CreateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	logging.API("Entry %d created in project %s by %s", e.ID, p.URL, caller.Contributor.Username)
	return createdEntryView(p, kind, e), nil
}

// ListEntries lists the entries of a project with their highlights.
func (s *Service) ListEntries(ctx context.Context, url string) ([]map[string]any, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView(p, kind, e))
	}
	return out, nil
}

func (s *Service) entry(ctx context.Context, p *types.Project, id int64) (*types.Entry, error) {
	e, err := s.store.GetEntry(ctx, p.ID, id)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Entry with ID: %d not found", id)
	}
	return e, err
}

// UpdateEntry changes the value of an entry on behalf of an administrator.
func (s *Service) UpdateEntry(ctx context.Context, caller *auth.Principal, url string, id int64, patch types.EntryPatch) (map[string]any, error) {
	p, kind, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	e, err := s.entry(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := kind.ApplyPatch(ctx, s.store, p, e, patch); err != nil {
		return nil, err
	}
	e, err = s.store.UpdateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	audit(logging.AuditEntryUpdate, caller, p, map[string]interface{}{"entry": e.ID, "value": kind.Values(e)})
	return entryView(p, kind, e), nil
}

// DeleteEntry removes an entry. Its history is kept.
func (s *Service) DeleteEntry(ctx context.Context, caller *auth.Principal, url string, id int64) (*Message, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	err = s.store.DeleteEntry(ctx, p.ID, id)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Entry with ID: %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	audit(logging.AuditEntryDelete, caller, p, map[string]interface{}{"entry": id})
	return message("Successfully deleted entry %d", id), nil
}

// EntryHistory returns the snapshots of an entry, oldest first. History is
// available after the entry has been deleted.
func (s *Service) EntryHistory(ctx context.Context, caller *auth.Principal, url string, id int64) ([]*types.HistoryRecord, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListEntryHistory(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, types.NotFound("Entry with ID: %d not found", id)
	}
	return records, nil
}

// Statistics returns entry and import totals plus the statistics specific to
// the project type.
func (s *Service) Statistics(ctx context.Context, url string) (map[string]any, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.CountEntries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	imported, err := s.store.CountImportedTexts(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	stats, err := kind.Statistics(ctx, s.store, p.ID)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"total_entries":        entries,
		"total_imported_texts": imported,
	}
	for k, v := range stats {
		out[k] = v
	}
	return out, nil
}
