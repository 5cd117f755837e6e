package annotation

import (
	"context"
	"testing"

	"annopedia/internal/store"
	"annopedia/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCategories serves categories from a map keyed by name.
type fakeCategories map[string]int64

func (f fakeCategories) GetCategoryByName(_ context.Context, projectID int64, name string) (*types.Category, error) {
	id, ok := f[name]
	if !ok {
		return nil, store.ErrNoRows
	}
	return &types.Category{ID: id, ProjectID: projectID, Name: name}, nil
}

type fakeStats struct {
	counts []store.CategoryCount
	avg    store.Averages
}

func (f fakeStats) CategoryEntryCounts(context.Context, int64) ([]store.CategoryCount, error) {
	return f.counts, nil
}

func (f fakeStats) HighlightCategoryCounts(context.Context, int64) ([]store.CategoryCount, error) {
	return f.counts, nil
}

func (f fakeStats) EntryAverages(context.Context, int64) (store.Averages, error) {
	return f.avg, nil
}

func project(pt types.ProjectType, charLevel bool) *types.Project {
	p := &types.Project{ID: 7, Type: pt, Name: "P"}
	if pt.NeedsCharacterLevel() {
		p.CharacterLevel = &charLevel
	}
	return p
}

func mustKind(t *testing.T, pt types.ProjectType) Kind {
	t.Helper()
	k, err := For(pt)
	require.NoError(t, err)
	require.Equal(t, pt, k.Type())
	return k
}

func TestForUnknownType(t *testing.T) {
	_, err := For(types.ProjectType("Sentiment"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupported)
}

func TestParameterNames(t *testing.T) {
	tests := []struct {
		pt   types.ProjectType
		want []string
	}{
		{types.TextClassification, []string{"text"}},
		{types.MachineTranslationAdequacy, []string{"reference_translation", "mt_system_translation"}},
		{types.MachineTranslationFluency, []string{"mt_system_translation"}},
		{types.NamedEntityRecognition, []string{"text"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.pt), func(t *testing.T) {
			assert.Equal(t, tt.want, ParameterNames(mustKind(t, tt.pt)))
		})
	}
}

func TestClassificationEntry(t *testing.T) {
	k := mustKind(t, types.TextClassification)
	cats := fakeCategories{"spam": 3}
	src := &types.ImportedText{ID: 11, Text: "buy now"}
	ctx := context.Background()

	e, err := k.BuildEntry(ctx, cats, project(types.TextClassification, false), src, map[string]any{"category-name": "spam"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), *e.CategoryID)
	assert.Equal(t, map[string]any{"category": "spam"}, k.Values(e))

	_, err = k.BuildEntry(ctx, cats, project(types.TextClassification, false), src, map[string]any{})
	assert.ErrorIs(t, err, types.ErrInvalid)

	_, err = k.BuildEntry(ctx, cats, project(types.TextClassification, false), src, map[string]any{"category-name": "ham"})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, "Category ham does not exist in project P", types.DetailOf(err))

	cats["ham"] = 4
	name := "ham"
	require.NoError(t, k.ApplyPatch(ctx, cats, project(types.TextClassification, false), e, types.EntryPatch{Classification: &name}))
	assert.Equal(t, "ham", e.Category)
	assert.ErrorIs(t, k.ApplyPatch(ctx, cats, project(types.TextClassification, false), e, types.EntryPatch{}), types.ErrInvalid)
}

func TestClassificationPreAnnotations(t *testing.T) {
	k := mustKind(t, types.TextClassification)
	assert.Equal(t, map[string]any{"category": NoPreannotation}, k.PreAnnotations(&types.ImportedText{}))

	id := int64(2)
	assert.Equal(t, map[string]any{"category": "spam"}, k.PreAnnotations(&types.ImportedText{PreCategoryID: &id, PreCategory: "spam"}))
}

func TestClassificationImport(t *testing.T) {
	k := mustKind(t, types.TextClassification)
	cats := fakeCategories{"spam": 3}
	p := project(types.TextClassification, false)
	ctx := context.Background()

	records := []types.Record{
		{"body": "a", "label": "spam", "ctx": "c1"},
		{"body": "b", "label": "", "ctx": ""},
	}
	fields := types.ImportFields{TextField: "body", ValueField: "label", ContextField: "ctx"}
	texts, err := k.PrepareImport(ctx, cats, p, records, fields)
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, int64(3), *texts[0].PreCategoryID)
	assert.Equal(t, "c1", *texts[0].Context)
	assert.Nil(t, texts[1].PreCategoryID)
	assert.Nil(t, texts[1].Context)

	records = append(records, types.Record{"label": "spam", "ctx": "x"}, types.Record{"ctx": "y"})
	_, err = k.PrepareImport(ctx, cats, p, records, fields)
	require.Error(t, err)
	assert.Equal(t, "Text field missing from row with index 2", types.DetailOf(err))

	_, err = k.PrepareImport(ctx, cats, p, []types.Record{{"body": "a", "label": "ham"}}, types.ImportFields{TextField: "body", ValueField: "label"})
	require.Error(t, err)
	assert.Contains(t, types.DetailOf(err), "category ham")

	_, err = k.PrepareImport(ctx, cats, p, []types.Record{{"body": "a"}}, types.ImportFields{TextField: "body", ContextField: "ctx"})
	assert.Equal(t, "Context field provided, but row with index 0 is missing context value", types.DetailOf(err))
}

func TestAdequacyEntryHighlights(t *testing.T) {
	k := mustKind(t, types.MachineTranslationAdequacy)
	src := &types.ImportedText{ID: 1, Text: "the red house", MTSystemTranslation: "das rote Haus"}
	ctx := context.Background()

	payload := map[string]any{
		"adequacy":               4.0,
		"source_text_highlights": []any{[]any{4.0, 7.0, "color"}},
		"target_text_highlights": []any{[]any{9.0, 13.0, "noun"}},
	}
	e, err := k.BuildEntry(ctx, nil, project(types.MachineTranslationAdequacy, false), src, payload)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *e.Adequacy)

	want := map[string]any{
		KeySourceHighlights: [][]any{{4, 7, "color"}},
		KeyTargetHighlights: [][]any{{9, 13, "noun"}},
	}
	if diff := cmp.Diff(want, k.Highlights(e)); diff != "" {
		t.Errorf("highlights mismatch (-want +got):\n%s", diff)
	}

	// Mid-word spans need character level selection.
	payload["source_text_highlights"] = []any{[]any{5.0, 7.0, "partial"}}
	_, err = k.BuildEntry(ctx, nil, project(types.MachineTranslationAdequacy, false), src, payload)
	assert.ErrorIs(t, err, types.ErrInvalid)
	_, err = k.BuildEntry(ctx, nil, project(types.MachineTranslationAdequacy, true), src, payload)
	assert.NoError(t, err)

	payload["source_text_highlights"] = []any{[]any{5.0, 99.0, "long"}}
	_, err = k.BuildEntry(ctx, nil, project(types.MachineTranslationAdequacy, true), src, payload)
	assert.ErrorIs(t, err, types.ErrInvalid)

	_, err = k.BuildEntry(ctx, nil, project(types.MachineTranslationAdequacy, true), src, map[string]any{})
	assert.ErrorIs(t, err, types.ErrInvalid)
}

func TestAdequacyImportAndPreAnnotations(t *testing.T) {
	k := mustKind(t, types.MachineTranslationAdequacy)
	p := project(types.MachineTranslationAdequacy, true)
	ctx := context.Background()

	records := []types.Record{
		{"ref": "a house", "mt": "ein Haus", "score": "3.5"},
		{"ref": "a cat", "mt": "eine Katze", "score": ""},
	}
	texts, err := k.PrepareImport(ctx, nil, p, records, types.ImportFields{TextField: "ref", MTSystemTranslation: "mt", ValueField: "score"})
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, "ein Haus", texts[0].MTSystemTranslation)
	assert.Equal(t, map[string]any{"adequacy": 3.5}, k.PreAnnotations(texts[0]))
	assert.Equal(t, map[string]any{"adequacy": NoAnnotation}, k.PreAnnotations(texts[1]))

	_, err = k.PrepareImport(ctx, nil, p, records, types.ImportFields{TextField: "ref"})
	assert.ErrorIs(t, err, types.ErrInvalid)

	_, err = k.PrepareImport(ctx, nil, p, []types.Record{{"ref": "x"}}, types.ImportFields{TextField: "ref", MTSystemTranslation: "mt"})
	assert.Equal(t, "Machine translation field missing from row with index 0", types.DetailOf(err))

	_, err = k.PrepareImport(ctx, nil, p, []types.Record{{"ref": "x", "mt": "y", "score": "high"}}, types.ImportFields{TextField: "ref", MTSystemTranslation: "mt", ValueField: "score"})
	assert.Contains(t, types.DetailOf(err), "invalid adequacy")
}

func TestImportReportsFirstBadRow(t *testing.T) {
	cats := fakeCategories{"spam": 3}
	tc := types.ImportFields{TextField: "text", ValueField: "label"}
	mta := types.ImportFields{TextField: "ref", MTSystemTranslation: "mt", ValueField: "score"}
	mtf := types.ImportFields{TextField: "mt", ValueField: "score"}

	tests := []struct {
		name    string
		pt      types.ProjectType
		fields  types.ImportFields
		records []types.Record
		want    string
	}{
		{
			name:   "classification bad category before missing text",
			pt:     types.TextClassification,
			fields: tc,
			records: []types.Record{
				{"text": "a", "label": "eggs"},
				{"label": "spam"},
			},
			want: "Row with index 0 contains category eggs, that does not exist in project P",
		},
		{
			name:   "classification missing text before bad category",
			pt:     types.TextClassification,
			fields: tc,
			records: []types.Record{
				{"text": "a", "label": "spam"},
				{"label": "spam"},
				{"text": "c", "label": "eggs"},
			},
			want: "Text field missing from row with index 1",
		},
		{
			name:   "adequacy bad score before missing translation",
			pt:     types.MachineTranslationAdequacy,
			fields: mta,
			records: []types.Record{
				{"ref": "a", "mt": "b", "score": "high"},
				{"ref": "c", "score": "2"},
			},
			want: `Row with index 0 has invalid adequacy value "high"`,
		},
		{
			name:   "adequacy missing value before bad score",
			pt:     types.MachineTranslationAdequacy,
			fields: mta,
			records: []types.Record{
				{"ref": "a", "mt": "b", "score": "1"},
				{"ref": "c", "mt": "d"},
				{"ref": "e", "mt": "f", "score": "low"},
			},
			want: "Value field provided, but row with index 1 is missing pre-annotation value",
		},
		{
			name:   "fluency bad score before missing text",
			pt:     types.MachineTranslationFluency,
			fields: mtf,
			records: []types.Record{
				{"mt": "a", "score": "x"},
				{"score": "3"},
			},
			want: `Row with index 0 has invalid fluency value "x"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := mustKind(t, tt.pt)
			p := project(tt.pt, true)
			_, err := k.PrepareImport(context.Background(), cats, p, tt.records, tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalid)
			assert.Equal(t, tt.want, types.DetailOf(err))
		})
	}
}

func TestFluencyPatchAndStatistics(t *testing.T) {
	k := mustKind(t, types.MachineTranslationFluency)
	ctx := context.Background()

	e := &types.Entry{}
	v := 2.5
	require.NoError(t, k.ApplyPatch(ctx, nil, nil, e, types.EntryPatch{Fluency: &v}))
	assert.Equal(t, map[string]any{"fluency": 2.5}, k.Values(e))
	assert.ErrorIs(t, k.ApplyPatch(ctx, nil, nil, e, types.EntryPatch{}), types.ErrInvalid)

	avg := 3.0
	stats, err := k.Statistics(ctx, fakeStats{avg: store.Averages{Fluency: &avg}}, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"averages": map[string]any{"fluency": &avg}}, stats)
}

func TestEntitiesRequireKnownLabels(t *testing.T) {
	k := mustKind(t, types.NamedEntityRecognition)
	cats := fakeCategories{"PER": 1, "LOC": 2}
	src := &types.ImportedText{ID: 5, Text: "Ada lives in London"}
	p := project(types.NamedEntityRecognition, false)
	ctx := context.Background()

	e, err := k.BuildEntry(ctx, cats, p, src, map[string]any{
		"ner_text_highlights": []any{[]any{0.0, 3.0, "PER"}, []any{13.0, 19.0, "LOC"}},
	})
	require.NoError(t, err)
	require.Len(t, e.Highlights, 2)
	assert.Equal(t, int64(2), *e.Highlights[1].CategoryID)
	assert.Equal(t, map[string]any{"entities": [][]any{{0, 3, "PER"}, {13, 19, "LOC"}}}, k.Values(e))

	_, err = k.BuildEntry(ctx, cats, p, src, map[string]any{
		"ner_text_highlights": []any{[]any{0.0, 3.0, "ORG"}},
	})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = k.BuildEntry(ctx, cats, p, src, map[string]any{})
	assert.ErrorIs(t, err, types.ErrInvalid)

	_, err = k.PrepareImport(ctx, cats, p, []types.Record{{"t": "x"}}, types.ImportFields{TextField: "t", ValueField: "v"})
	assert.ErrorIs(t, err, types.ErrInvalid)

	stats, err := k.Statistics(ctx, fakeStats{counts: []store.CategoryCount{{Name: "PER", Total: 1}}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"name": "PER", "total_highlights": 1}}, stats["categories"])
}

func TestWordBoundary(t *testing.T) {
	text := []rune("héllo, wörld")
	assert.True(t, wordBoundary(text, 0))
	assert.True(t, wordBoundary(text, 5))
	assert.False(t, wordBoundary(text, 2))
	assert.True(t, wordBoundary(text, 7))
	assert.True(t, wordBoundary(text, len(text)))
}
