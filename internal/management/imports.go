package management

import (
	"context"
	"errors"

	"annopedia/internal/annotation"
	"annopedia/internal/auth"
	"annopedia/internal/export"
	"annopedia/internal/ingest"
	"annopedia/internal/logging"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// ImportRequest is an uploaded file of unannotated texts with the names of
// the columns to read.
type ImportRequest struct {
	ContentType  string
	Body         []byte
	CSVDelimiter string
	Fields       types.ImportFields
}

// Import stores every record of an upload as an unannotated text. Nothing is
// stored unless every record is valid.
func (s *Service) Import(ctx context.Context, caller *auth.Principal, url string, req ImportRequest) (*Message, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	if req.Fields.TextField == "" {
		return nil, types.Unprocessable("Missing request data (text_field)")
	}

	records, err := ingest.Parse(req.ContentType, req.Body, req.CSVDelimiter)
	if err != nil {
		return nil, err
	}
	texts, err := kind.PrepareImport(ctx, s.store, p, records, req.Fields)
	if err != nil {
		logging.Get(logging.CategoryImport).Warn("Import into %s rejected: %v", p.URL, err)
		return nil, err
	}
	n, err := s.store.InsertImportedTexts(ctx, p.ID, texts)
	if err != nil {
		return nil, err
	}
	audit(logging.AuditImport, caller, p, map[string]interface{}{"count": n, "content_type": req.ContentType})
	return message("Successfully created %d unannotated entries", n), nil
}

// ListImported lists every imported text of a project.
func (s *Service) ListImported(ctx context.Context, url string) ([]*ImportedView, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	texts, err := s.store.ListImportedTexts(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return importedViews(p, kind, texts), nil
}

// ListUnannotated lists the imported texts the caller has not annotated yet.
func (s *Service) ListUnannotated(ctx context.Context, caller *auth.Principal, url string) ([]*ImportedView, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	ann, err := s.annotatorFor(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	texts, err := s.store.ListUnannotatedTexts(ctx, p.ID, ann.ID)
	if err != nil {
		return nil, err
	}
	return importedViews(p, kind, texts), nil
}

func importedViews(p *types.Project, kind annotation.Kind, texts []*types.ImportedText) []*ImportedView {
	out := make([]*ImportedView, 0, len(texts))
	for _, t := range texts {
		out = append(out, importedView(p, kind, t))
	}
	return out
}

// DeleteImported removes an imported text and the entries annotating it.
func (s *Service) DeleteImported(ctx context.Context, caller *auth.Principal, url string, id int64) (*Message, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	err = s.store.DeleteImportedText(ctx, p.ID, id)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Unannotated entry with ID: %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	audit(logging.AuditImportedDelete, caller, p, map[string]interface{}{"imported_text": id})
	return message("Successfully deleted unannotated entry %d", id), nil
}

// =============================================================================
// EXPORT
// =============================================================================

// Export renders every entry of a project as a csv or json attachment.
func (s *Service) Export(ctx context.Context, url, exportType string) (*export.Attachment, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	if exportType != "csv" && exportType != "json" {
		return nil, types.Invalid("Requested export type %s is not supported", exportType)
	}
	entries, err := s.store.ListEntries(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if exportType == "csv" {
		return export.CSV(p, kind, entries)
	}
	return export.JSON(p, kind, entries)
}

// ExportDisagreements compares the entries of two private annotators of a
// project, identified by username.
func (s *Service) ExportDisagreements(ctx context.Context, url, annotator1, annotator2 string) (*export.Attachment, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, err
	}
	entries := make([][]*types.Entry, 2)
	for i, name := range []string{annotator1, annotator2} {
		a, err := s.store.GetPrivateAnnotator(ctx, p.ID, name)
		if errors.Is(err, store.ErrNoRows) {
			return nil, types.NotFound("Private Annotator with username %s does not exist", name)
		}
		if err != nil {
			return nil, err
		}
		if entries[i], err = s.store.ListAnnotatorEntries(ctx, p.ID, a.ID); err != nil {
			return nil, err
		}
	}
	return export.Disagreements(kind, annotator1, annotator2, entries[0], entries[1])
}
