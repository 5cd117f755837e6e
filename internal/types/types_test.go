package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("Project with url %s does not exist", "x"), http.StatusNotFound},
		{"unsupported", Unsupported("no categories"), http.StatusNotFound},
		{"unauthorized", Unauthorized("Unauthorized"), http.StatusUnauthorized},
		{"invalid", Invalid("bad"), http.StatusBadRequest},
		{"conflict", Conflict("exists"), http.StatusBadRequest},
		{"unprocessable", Unprocessable("Missing request data (name)"), http.StatusUnprocessableEntity},
		{"wrapped", fmt.Errorf("import: %w", Invalid("bad row")), http.StatusBadRequest},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestDetailOf(t *testing.T) {
	err := NotFound("Entry with ID: %d not found", 7)
	assert.Equal(t, "Entry with ID: 7 not found", DetailOf(err))
	assert.Equal(t, "Entry with ID: 7 not found", DetailOf(fmt.Errorf("lookup: %w", err)))
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, "Internal server error", DetailOf(errors.New("sql: connection refused")))
}

func TestParseProjectType(t *testing.T) {
	for _, alias := range []string{"Text Classification", "tc", "TC", "text-classification"} {
		pt, ok := ParseProjectType(alias)
		assert.True(t, ok, alias)
		assert.Equal(t, TextClassification, pt)
	}

	pt, ok := ParseProjectType("mta")
	assert.True(t, ok)
	assert.Equal(t, MachineTranslationAdequacy, pt)

	for _, alias := range []string{"", "Tc", "text classification", "ner "} {
		_, ok := ParseProjectType(alias)
		assert.False(t, ok, alias)
	}
}

func TestProjectTypeTraits(t *testing.T) {
	assert.True(t, TextClassification.HasCategories())
	assert.True(t, NamedEntityRecognition.HasCategories())
	assert.False(t, MachineTranslationFluency.HasCategories())

	assert.False(t, TextClassification.NeedsCharacterLevel())
	assert.True(t, MachineTranslationAdequacy.NeedsCharacterLevel())
}

func TestCompletion(t *testing.T) {
	assert.Equal(t, 100.0, Completion(0, 0))
	assert.Equal(t, 0.0, Completion(0, 4))
	assert.Equal(t, 33.0, Completion(1, 3))
	assert.Equal(t, 67.0, Completion(2, 3))
	assert.Equal(t, 100.0, Completion(5, 5))

	// The ratio is rounded to two decimals; exact ties go to the even digit.
	tests := []struct {
		annotated, imported int
		want                float64
	}{
		{1, 8, 12},
		{3, 8, 38},
		{5, 8, 62},
		{7, 8, 88},
		{1, 6, 17},
		{2, 7, 29},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Completion(tt.annotated, tt.imported), "%d/%d", tt.annotated, tt.imported)
	}
}

func TestCharacterLevelSelection(t *testing.T) {
	no := false
	assert.True(t, (&Project{}).CharacterLevelSelection())
	assert.False(t, (&Project{CharacterLevel: &no}).CharacterLevelSelection())
}

func TestHighlightsOn(t *testing.T) {
	e := &Entry{Highlights: []Highlight{
		{Side: SideSource, Start: 0, End: 3},
		{Side: SideTarget, Start: 1, End: 2},
		{Side: SideSource, Start: 5, End: 8},
	}}
	src := e.HighlightsOn(SideSource)
	assert.Len(t, src, 2)
	assert.Equal(t, 5, src[1].Start)
	assert.Empty(t, e.HighlightsOn(SideEntity))
}
