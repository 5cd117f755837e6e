package annotation

import (
	"context"

	"annopedia/internal/types"
)

// entities is the named entity recognition kind. An entry is the list of
// entity spans; every label is a category name of the project.
type entities struct{}

func (entities) Type() types.ProjectType { return types.NamedEntityRecognition }

func (entities) ValueFields() []string { return []string{"entities"} }

func (entities) BuildEntry(ctx context.Context, cats CategoryLookup, p *types.Project, src *types.ImportedText, payload map[string]any) (*types.Entry, error) {
	raw, ok := payload[KeyNERHighlights]
	if !ok {
		return nil, types.Invalid("Missing %s in payload", KeyNERHighlights)
	}
	hs, err := parseHighlights(raw, KeyNERHighlights, types.SideEntity, src.Text, p.CharacterLevelSelection())
	if err != nil {
		return nil, err
	}

	ids := map[string]int64{}
	for i := range hs {
		id, done := ids[hs[i].Label]
		if !done {
			c, err := lookupCategory(ctx, cats, p, hs[i].Label)
			if err != nil {
				return nil, err
			}
			id = c.ID
			ids[hs[i].Label] = id
		}
		catID := id
		hs[i].CategoryID = &catID
	}
	return &types.Entry{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		Highlights: hs,
	}, nil
}

func (entities) ApplyPatch(context.Context, CategoryLookup, *types.Project, *types.Entry, types.EntryPatch) error {
	return types.Invalid("Entries of %s projects cannot be patched", types.NamedEntityRecognition)
}

func (entities) Values(e *types.Entry) map[string]any {
	return map[string]any{"entities": triples(e.HighlightsOn(types.SideEntity))}
}

func (entities) Highlights(e *types.Entry) map[string]any {
	return map[string]any{KeyNERHighlights: triples(e.HighlightsOn(types.SideEntity))}
}

func (entities) PreAnnotations(*types.ImportedText) map[string]any {
	return map[string]any{"entities": NoPreannotation}
}

func (entities) Parameters(t *types.ImportedText) []Param {
	return []Param{{Name: "text", Value: t.Text}}
}

func (entities) PrepareImport(_ context.Context, _ CategoryLookup, p *types.Project, records []types.Record, fields types.ImportFields) ([]*types.ImportedText, error) {
	if fields.ValueField != "" {
		return nil, types.Invalid("Pre-annotations are not supported for %s projects", types.NamedEntityRecognition)
	}
	out := make([]*types.ImportedText, 0, len(records))
	for i, r := range records {
		if err := checkRecord(i, r, fields, column{fields.TextField, "Text"}); err != nil {
			return nil, err
		}
		out = append(out, &types.ImportedText{
			ProjectID: p.ID,
			Text:      r[fields.TextField],
			Context:   contextOf(r, fields.ContextField),
		})
	}
	return out, nil
}

func (entities) Statistics(ctx context.Context, src StatsSource, projectID int64) (map[string]any, error) {
	counts, err := src.HighlightCategoryCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	categories := make([]map[string]any, 0, len(counts))
	for _, c := range counts {
		categories = append(categories, map[string]any{"name": c.Name, "total_highlights": c.Total})
	}
	return map[string]any{"categories": categories}, nil
}
