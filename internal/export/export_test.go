package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime"
	"testing"
	"time"

	"annopedia/internal/annotation"
	"annopedia/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func kindFor(t *testing.T, pt types.ProjectType) annotation.Kind {
	t.Helper()
	k, err := annotation.For(pt)
	require.NoError(t, err)
	return k
}

func tcEntry(id, sourceID int64, text, category, user string) *types.Entry {
	catID := int64(1)
	return &types.Entry{
		ID:         id,
		SourceID:   sourceID,
		Source:     &types.ImportedText{ID: sourceID, Text: text},
		CategoryID: &catID,
		Category:   category,
		Annotator:  &types.Annotator{Contributor: &types.Contributor{Username: user}},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func readCSV(t *testing.T, body []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVEmptyProjectHasHeader(t *testing.T) {
	p := &types.Project{Name: "Empty", URL: "u"}
	att, err := CSV(p, kindFor(t, types.MachineTranslationAdequacy), nil)
	require.NoError(t, err)
	assert.Equal(t, "Empty.csv", att.Filename)

	rows := readCSV(t, att.Body)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{
		"id", "imported_text_source_id", "reference_translation", "mt_system_translation",
		"adequacy", "preannotation_adequacy", "created_at", "updated_at",
	}, rows[0])
}

func TestCSVRows(t *testing.T) {
	p := &types.Project{Name: "News", URL: "u"}
	att, err := CSV(p, kindFor(t, types.TextClassification), []*types.Entry{tcEntry(3, 9, "hello, world", "greeting", "ann")})
	require.NoError(t, err)

	rows := readCSV(t, att.Body)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "imported_text_source_id", "text", "category", "preannotation_category", "created_at", "updated_at"}, rows[0])
	assert.Equal(t, []string{"3", "9", "hello, world", "greeting", annotation.NoPreannotation, "2024-03-01T12:00:00Z", "2024-03-01T12:00:00Z"}, rows[1])
}

func TestJSONExportOfClassificationEntry(t *testing.T) {
	p := &types.Project{Name: "News", URL: "u"}
	att, err := JSON(p, kindFor(t, types.TextClassification), []*types.Entry{tcEntry(3, 9, "hello", "greeting", "ann")})
	require.NoError(t, err)
	assert.Equal(t, "News.json", att.Filename)
	assert.Equal(t, ETag(att.Body), att.ETag)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(att.Body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "greeting", got[0]["category"])
	assert.Equal(t, "hello", got[0]["text"])
	assert.Equal(t, annotation.NoPreannotation, got[0]["preannotation_category"])
	assert.Equal(t, "ann", got[0]["annotator"])
	assert.EqualValues(t, 9, got[0]["imported_text_source_id"])
}

func TestDisagreements(t *testing.T) {
	kind := kindFor(t, types.TextClassification)
	alice := []*types.Entry{
		tcEntry(1, 1, "one", "pos", "alice"),
		tcEntry(2, 2, "two", "neg", "alice"),
		tcEntry(3, 3, "three", "pos", "alice"),
	}
	bob := []*types.Entry{
		tcEntry(4, 1, "one", "pos", "bob"),
		tcEntry(5, 2, "two", "pos", "bob"),
		tcEntry(6, 4, "four", "neg", "bob"),
	}

	att, err := Disagreements(kind, "alice", "bob", alice, bob)
	require.NoError(t, err)
	assert.Equal(t, "disagreements-alice-bob.json", att.Filename)
	assert.Equal(t, "attachment; filename=disagreements-alice-bob.json", att.ContentDisposition())

	var got []map[string]any
	require.NoError(t, json.Unmarshal(att.Body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{
		"alice": map[string]any{"category": "neg"},
		"bob":   map[string]any{"category": "pos"},
		"text":  "two",
	}, got[0])
}

func TestDisagreementsEmptyIsList(t *testing.T) {
	att, err := Disagreements(kindFor(t, types.TextClassification), "a", "b", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(att.Body))
}

func TestETagStable(t *testing.T) {
	assert.Equal(t, ETag([]byte("x")), ETag([]byte("x")))
	assert.NotEqual(t, ETag([]byte("x")), ETag([]byte("y")))
	assert.Len(t, ETag(nil), 18)
}

func TestContentDispositionEscapesFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"News.csv", "attachment; filename=News.csv"},
		{"My project.json", `attachment; filename="My project.json"`},
		{`My "best" project.csv`, `attachment; filename="My \"best\" project.csv"`},
		{`back\slash.csv`, `attachment; filename="back\\slash.csv"`},
		{"Überschriften.csv", "attachment; filename*=utf-8''%C3%9Cberschriften.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			header := NewAttachment(tt.filename, nil).ContentDisposition()
			assert.Equal(t, tt.want, header)

			disposition, params, err := mime.ParseMediaType(header)
			require.NoError(t, err)
			assert.Equal(t, "attachment", disposition)
			assert.Equal(t, tt.filename, params["filename"])
		})
	}
}
