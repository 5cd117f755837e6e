// Package annotation implements the behavior that differs between project
// types: what an entry's value is, how payloads and imports are validated,
// and how statistics are shaped.
//
// Each project type is a Kind. Callers look one up with For and never switch
// on the project type themselves.
package annotation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"annopedia/internal/store"
	"annopedia/internal/types"
)

// Fallback pre-annotation literals.
const (
	NoPreannotation = "No preannotation"
	NoAnnotation    = "No annotation"
)

// Payload keys shared by several kinds.
const (
	KeySourceHighlights = "source_text_highlights"
	KeyTargetHighlights = "target_text_highlights"
	KeyNERHighlights    = "ner_text_highlights"
)

// CategoryLookup resolves category names within a project.
type CategoryLookup interface {
	GetCategoryByName(ctx context.Context, projectID int64, name string) (*types.Category, error)
}

// StatsSource provides the aggregates statistics are built from.
type StatsSource interface {
	CategoryEntryCounts(ctx context.Context, projectID int64) ([]store.CategoryCount, error)
	HighlightCategoryCounts(ctx context.Context, projectID int64) ([]store.CategoryCount, error)
	EntryAverages(ctx context.Context, projectID int64) (store.Averages, error)
}

// Param is one named input of an imported text, in display order.
type Param struct {
	Name  string
	Value string
}

// Kind is the per-project-type behavior.
type Kind interface {
	// Type is the project type this kind serves.
	Type() types.ProjectType
	// ValueFields names the annotated values of an entry.
	ValueFields() []string
	// BuildEntry validates a payload against src and returns an unsaved entry.
	BuildEntry(ctx context.Context, cats CategoryLookup, p *types.Project, src *types.ImportedText, payload map[string]any) (*types.Entry, error)
	// ApplyPatch changes the value of an entry in place.
	ApplyPatch(ctx context.Context, cats CategoryLookup, p *types.Project, e *types.Entry, patch types.EntryPatch) error
	// Values returns the annotated values keyed by value field.
	Values(e *types.Entry) map[string]any
	// Highlights returns the highlight lists of an entry keyed by payload key.
	Highlights(e *types.Entry) map[string]any
	// PreAnnotations returns the pre-annotated values keyed by value field.
	PreAnnotations(t *types.ImportedText) map[string]any
	// Parameters returns the inputs shown to annotators.
	Parameters(t *types.ImportedText) []Param
	// PrepareImport validates every record before converting any of them.
	PrepareImport(ctx context.Context, cats CategoryLookup, p *types.Project, records []types.Record, fields types.ImportFields) ([]*types.ImportedText, error)
	// Statistics returns the type-specific part of project statistics.
	Statistics(ctx context.Context, src StatsSource, projectID int64) (map[string]any, error)
}

var kinds = map[types.ProjectType]Kind{
	types.TextClassification:         classification{},
	types.MachineTranslationAdequacy: adequacy{},
	types.MachineTranslationFluency:  fluency{},
	types.NamedEntityRecognition:     entities{},
}

// For returns the kind of a project type.
func For(t types.ProjectType) (Kind, error) {
	k, ok := kinds[t]
	if !ok {
		return nil, types.Unsupported("Project type %s is not supported", t)
	}
	return k, nil
}

// ParameterNames returns the parameter names of a project type without an
// imported text, for headers of empty exports.
func ParameterNames(k Kind) []string {
	params := k.Parameters(&types.ImportedText{})
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func lookupCategory(ctx context.Context, cats CategoryLookup, p *types.Project, name string) (*types.Category, error) {
	c, err := cats.GetCategoryByName(ctx, p.ID, name)
	if errors.Is(err, store.ErrNoRows) {
		return nil, types.NotFound("Category %s does not exist in project %s", name, p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up category %s: %w", name, err)
	}
	return c, nil
}

// number reads a JSON number from a payload value.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

// parseHighlights reads a list of [start, end, label] triples and checks each
// span against text.
func parseHighlights(v any, key string, side types.HighlightSide, text string, charLevel bool) ([]types.Highlight, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, types.Invalid("%s must be a list of [start, end, label] triples", key)
	}
	runes := []rune(text)
	out := make([]types.Highlight, 0, len(list))
	for i, item := range list {
		triple, ok := item.([]any)
		if !ok || len(triple) != 3 {
			return nil, types.Invalid("Highlight %d in %s must be a [start, end, label] triple", i, key)
		}
		start, okStart := number(triple[0])
		end, okEnd := number(triple[1])
		label, okLabel := triple[2].(string)
		if !okStart || !okEnd || !okLabel || start != math.Trunc(start) || end != math.Trunc(end) {
			return nil, types.Invalid("Highlight %d in %s must be a [start, end, label] triple", i, key)
		}
		h := types.Highlight{Side: side, Start: int(start), End: int(end), Label: label}
		if err := checkSpan(runes, h, charLevel); err != nil {
			return nil, types.Invalid("Highlight %d in %s: %v", i, key, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func checkSpan(text []rune, h types.Highlight, charLevel bool) error {
	if h.Start < 0 || h.Start >= h.End || h.End > len(text) {
		return fmt.Errorf("span [%d, %d) is outside the text of length %d", h.Start, h.End, len(text))
	}
	if !charLevel && (!wordBoundary(text, h.Start) || !wordBoundary(text, h.End)) {
		return fmt.Errorf("span [%d, %d) does not lie on word boundaries", h.Start, h.End)
	}
	return nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// wordBoundary reports whether offset i does not split a word.
func wordBoundary(text []rune, i int) bool {
	if i <= 0 || i >= len(text) {
		return true
	}
	return !isWordRune(text[i-1]) || !isWordRune(text[i])
}

func triples(hs []types.Highlight) [][]any {
	out := make([][]any, 0, len(hs))
	for _, h := range hs {
		out = append(out, []any{h.Start, h.End, h.Label})
	}
	return out
}

func scoreOrFallback(v *float64) any {
	if v == nil {
		return NoAnnotation
	}
	return *v
}

// column is a record field every row must carry.
type column struct {
	field string
	label string
}

// checkRecord reports whether row i lacks a required, context or value field.
func checkRecord(i int, r types.Record, fields types.ImportFields, required ...column) error {
	for _, c := range required {
		if _, ok := r[c.field]; !ok {
			return types.Invalid("%s field missing from row with index %d", c.label, i)
		}
	}
	if fields.ContextField != "" {
		if _, ok := r[fields.ContextField]; !ok {
			return types.Invalid("Context field provided, but row with index %d is missing context value", i)
		}
	}
	if fields.ValueField != "" {
		if _, ok := r[fields.ValueField]; !ok {
			return types.Invalid("Value field provided, but row with index %d is missing pre-annotation value", i)
		}
	}
	return nil
}

func contextOf(r types.Record, field string) *string {
	if field == "" {
		return nil
	}
	v, ok := r[field]
	if !ok || v == "" {
		return nil
	}
	return &v
}

// scoreOf parses the optional pre-annotated score of row i. An empty value
// means no pre-annotation.
func scoreOf(i int, r types.Record, field, name string) (*float64, error) {
	if field == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(r[field])
	if raw == "" {
		return nil, nil
	}
	f, ok := number(raw)
	if !ok {
		return nil, types.Invalid("Row with index %d has invalid %s value %q", i, name, raw)
	}
	return &f, nil
}
