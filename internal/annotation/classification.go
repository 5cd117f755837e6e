package annotation

import (
	"context"
	"errors"
	"strings"

	"annopedia/internal/store"
	"annopedia/internal/types"
)

const keyCategoryName = "category-name"

// classification is the text classification kind: one category per entry.
type classification struct{}

func (classification) Type() types.ProjectType { return types.TextClassification }

func (classification) ValueFields() []string { return []string{"category"} }

func (classification) BuildEntry(ctx context.Context, cats CategoryLookup, p *types.Project, src *types.ImportedText, payload map[string]any) (*types.Entry, error) {
	name, ok := payload[keyCategoryName].(string)
	if !ok || name == "" {
		return nil, types.Invalid("Missing category name in payload")
	}
	c, err := lookupCategory(ctx, cats, p, name)
	if err != nil {
		return nil, err
	}
	return &types.Entry{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		CategoryID: &c.ID,
		Category:   c.Name,
	}, nil
}

func (classification) ApplyPatch(ctx context.Context, cats CategoryLookup, p *types.Project, e *types.Entry, patch types.EntryPatch) error {
	if patch.Classification == nil || *patch.Classification == "" {
		return types.Invalid("Missing classification in update data")
	}
	c, err := lookupCategory(ctx, cats, p, *patch.Classification)
	if err != nil {
		return err
	}
	e.CategoryID = &c.ID
	e.Category = c.Name
	return nil
}

func (classification) Values(e *types.Entry) map[string]any {
	return map[string]any{"category": e.Category}
}

func (classification) Highlights(*types.Entry) map[string]any { return map[string]any{} }

func (classification) PreAnnotations(t *types.ImportedText) map[string]any {
	if t.PreCategoryID == nil || t.PreCategory == "" {
		return map[string]any{"category": NoPreannotation}
	}
	return map[string]any{"category": t.PreCategory}
}

func (classification) Parameters(t *types.ImportedText) []Param {
	return []Param{{Name: "text", Value: t.Text}}
}

func (classification) PrepareImport(ctx context.Context, cats CategoryLookup, p *types.Project, records []types.Record, fields types.ImportFields) ([]*types.ImportedText, error) {
	// Each distinct pre-annotated category is looked up once.
	resolved := map[string]int64{}
	out := make([]*types.ImportedText, 0, len(records))
	for i, r := range records {
		if err := checkRecord(i, r, fields, column{fields.TextField, "Text"}); err != nil {
			return nil, err
		}
		t := &types.ImportedText{
			ProjectID: p.ID,
			Text:      r[fields.TextField],
			Context:   contextOf(r, fields.ContextField),
		}
		if name := strings.TrimSpace(r[fields.ValueField]); fields.ValueField != "" && name != "" {
			id, ok := resolved[name]
			if !ok {
				c, err := cats.GetCategoryByName(ctx, p.ID, name)
				if errors.Is(err, store.ErrNoRows) {
					return nil, types.Invalid("Row with index %d contains category %s, that does not exist in project %s", i, name, p.Name)
				}
				if err != nil {
					return nil, err
				}
				id = c.ID
				resolved[name] = id
			}
			t.PreCategoryID = &id
		}
		out = append(out, t)
	}
	return out, nil
}

func (classification) Statistics(ctx context.Context, src StatsSource, projectID int64) (map[string]any, error) {
	counts, err := src.CategoryEntryCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}
	categories := make([]map[string]any, 0, len(counts))
	for _, c := range counts {
		categories = append(categories, map[string]any{"name": c.Name, "total_entries": c.Total})
	}
	return map[string]any{"categories": categories}, nil
}
