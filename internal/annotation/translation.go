package annotation

import (
	"context"

	"annopedia/internal/types"
)

// adequacy is the machine translation adequacy kind. The imported text is the
// reference translation; annotators score how well the system translation
// preserves its meaning and may highlight spans on both sides.
type adequacy struct{}

func (adequacy) Type() types.ProjectType { return types.MachineTranslationAdequacy }

func (adequacy) ValueFields() []string { return []string{"adequacy"} }

func (adequacy) BuildEntry(ctx context.Context, cats CategoryLookup, p *types.Project, src *types.ImportedText, payload map[string]any) (*types.Entry, error) {
	score, ok := number(payload["adequacy"])
	if !ok {
		return nil, types.Invalid("Missing adequacy in payload")
	}
	charLevel := p.CharacterLevelSelection()
	source, err := parseHighlights(payload[KeySourceHighlights], KeySourceHighlights, types.SideSource, src.Text, charLevel)
	if err != nil {
		return nil, err
	}
	target, err := parseHighlights(payload[KeyTargetHighlights], KeyTargetHighlights, types.SideTarget, src.MTSystemTranslation, charLevel)
	if err != nil {
		return nil, err
	}
	return &types.Entry{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		Adequacy:   &score,
		Highlights: append(source, target...),
	}, nil
}

func (adequacy) ApplyPatch(_ context.Context, _ CategoryLookup, _ *types.Project, e *types.Entry, patch types.EntryPatch) error {
	if patch.Adequacy == nil {
		return types.Invalid("Missing adequacy in update data")
	}
	v := *patch.Adequacy
	e.Adequacy = &v
	return nil
}

func (adequacy) Values(e *types.Entry) map[string]any {
	return map[string]any{"adequacy": scoreValue(e.Adequacy)}
}

func (adequacy) Highlights(e *types.Entry) map[string]any {
	return map[string]any{
		KeySourceHighlights: triples(e.HighlightsOn(types.SideSource)),
		KeyTargetHighlights: triples(e.HighlightsOn(types.SideTarget)),
	}
}

func (adequacy) PreAnnotations(t *types.ImportedText) map[string]any {
	return map[string]any{"adequacy": scoreOrFallback(t.PreAdequacy)}
}

func (adequacy) Parameters(t *types.ImportedText) []Param {
	return []Param{
		{Name: "reference_translation", Value: t.Text},
		{Name: "mt_system_translation", Value: t.MTSystemTranslation},
	}
}

func (adequacy) PrepareImport(_ context.Context, _ CategoryLookup, p *types.Project, records []types.Record, fields types.ImportFields) ([]*types.ImportedText, error) {
	if fields.MTSystemTranslation == "" {
		return nil, types.Invalid("Missing machine translation field name (mt_system_translation)")
	}
	out := make([]*types.ImportedText, 0, len(records))
	for i, r := range records {
		if err := checkRecord(i, r, fields,
			column{fields.TextField, "Reference translation"},
			column{fields.MTSystemTranslation, "Machine translation"}); err != nil {
			return nil, err
		}
		score, err := scoreOf(i, r, fields.ValueField, "adequacy")
		if err != nil {
			return nil, err
		}
		out = append(out, &types.ImportedText{
			ProjectID:           p.ID,
			Text:                r[fields.TextField],
			MTSystemTranslation: r[fields.MTSystemTranslation],
			Context:             contextOf(r, fields.ContextField),
			PreAdequacy:         score,
		})
	}
	return out, nil
}

func (adequacy) Statistics(ctx context.Context, src StatsSource, projectID int64) (map[string]any, error) {
	avg, err := src.EntryAverages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"averages": map[string]any{"adequacy": avg.Adequacy}}, nil
}

// fluency is the machine translation fluency kind. The imported text is the
// system translation itself; annotators score how natural it reads.
type fluency struct{}

func (fluency) Type() types.ProjectType { return types.MachineTranslationFluency }

func (fluency) ValueFields() []string { return []string{"fluency"} }

func (fluency) BuildEntry(ctx context.Context, cats CategoryLookup, p *types.Project, src *types.ImportedText, payload map[string]any) (*types.Entry, error) {
	score, ok := number(payload["fluency"])
	if !ok {
		return nil, types.Invalid("Missing fluency in payload")
	}
	target, err := parseHighlights(payload[KeyTargetHighlights], KeyTargetHighlights, types.SideTarget, src.Text, p.CharacterLevelSelection())
	if err != nil {
		return nil, err
	}
	return &types.Entry{
		ProjectID:  p.ID,
		SourceID:   src.ID,
		Fluency:    &score,
		Highlights: target,
	}, nil
}

func (fluency) ApplyPatch(_ context.Context, _ CategoryLookup, _ *types.Project, e *types.Entry, patch types.EntryPatch) error {
	if patch.Fluency == nil {
		return types.Invalid("Missing fluency in update data")
	}
	v := *patch.Fluency
	e.Fluency = &v
	return nil
}

func (fluency) Values(e *types.Entry) map[string]any {
	return map[string]any{"fluency": scoreValue(e.Fluency)}
}

func (fluency) Highlights(e *types.Entry) map[string]any {
	return map[string]any{KeyTargetHighlights: triples(e.HighlightsOn(types.SideTarget))}
}

func (fluency) PreAnnotations(t *types.ImportedText) map[string]any {
	return map[string]any{"fluency": scoreOrFallback(t.PreFluency)}
}

func (fluency) Parameters(t *types.ImportedText) []Param {
	return []Param{{Name: "mt_system_translation", Value: t.Text}}
}

func (fluency) PrepareImport(_ context.Context, _ CategoryLookup, p *types.Project, records []types.Record, fields types.ImportFields) ([]*types.ImportedText, error) {
	out := make([]*types.ImportedText, 0, len(records))
	for i, r := range records {
		if err := checkRecord(i, r, fields, column{fields.TextField, "Machine translation"}); err != nil {
			return nil, err
		}
		score, err := scoreOf(i, r, fields.ValueField, "fluency")
		if err != nil {
			return nil, err
		}
		out = append(out, &types.ImportedText{
			ProjectID:  p.ID,
			Text:       r[fields.TextField],
			Context:    contextOf(r, fields.ContextField),
			PreFluency: score,
		})
	}
	return out, nil
}

func (fluency) Statistics(ctx context.Context, src StatsSource, projectID int64) (map[string]any, error) {
	avg, err := src.EntryAverages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"averages": map[string]any{"fluency": avg.Fluency}}, nil
}

// scoreValue unwraps a score for output; a missing score is null.
func scoreValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
