// Package export renders project entries as downloadable CSV and JSON
// attachments, and compares the entries of two annotators.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime"
	"reflect"
	"sort"
	"strconv"
	"time"

	"annopedia/internal/annotation"
	"annopedia/internal/logging"
	"annopedia/internal/types"

	"github.com/cespare/xxhash/v2"
)

// ContentType is sent with every attachment so browsers download it.
const ContentType = "application/force-download"

// Attachment is a rendered export ready to be served.
type Attachment struct {
	Filename string
	Body     []byte
	ETag     string
}

// NewAttachment wraps body and computes its ETag.
func NewAttachment(filename string, body []byte) *Attachment {
	return &Attachment{
		Filename: filename,
		Body:     body,
		ETag:     ETag(body),
	}
}

// ETag is a strong entity tag derived from the xxhash of body.
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// ContentDisposition is the header value that names the attachment. The
// filename is quoted or RFC 2231 encoded when it is not a plain token.
func (a *Attachment) ContentDisposition() string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// sortedValueFields returns the value fields of kind in lexical order.
func sortedValueFields(kind annotation.Kind) []string {
	fields := append([]string(nil), kind.ValueFields()...)
	sort.Strings(fields)
	return fields
}

// =============================================================================
// CSV
// =============================================================================

// CSV renders entries one row each. A project without entries still gets a
// header row built from its parameter names.
func CSV(p *types.Project, kind annotation.Kind, entries []*types.Entry) (*Attachment, error) {
	timer := logging.StartTimer(logging.CategoryExport, "CSV")
	defer timer.Stop()

	fields := sortedValueFields(kind)
	params := annotation.ParameterNames(kind)
	if len(entries) > 0 {
		params = params[:0]
		for _, param := range kind.Parameters(entries[0].Source) {
			params = append(params, param.Name)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "imported_text_source_id"}
	header = append(header, params...)
	header = append(header, fields...)
	for _, f := range fields {
		header = append(header, "preannotation_"+f)
	}
	header = append(header, "created_at", "updated_at")
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, e := range entries {
		values := kind.Values(e)
		pre := kind.PreAnnotations(e.Source)

		row := []string{strconv.FormatInt(e.ID, 10), strconv.FormatInt(e.SourceID, 10)}
		for _, param := range kind.Parameters(e.Source) {
			row = append(row, param.Value)
		}
		for _, f := range fields {
			row = append(row, cell(values[f]))
		}
		for _, f := range fields {
			row = append(row, cell(pre[f]))
		}
		row = append(row, timestamp(e.CreatedAt), timestamp(e.UpdatedAt))
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row for entry %d: %w", e.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	logging.Export("Exported %d entries of project %s as CSV", len(entries), p.URL)
	return NewAttachment(p.Name+".csv", buf.Bytes()), nil
}

// cell renders a value for a CSV cell. Lists are JSON encoded.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *float64:
		if x == nil {
			return ""
		}
		return strconv.FormatFloat(*x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// =============================================================================
// JSON
// =============================================================================

// Record returns the export object of one entry: identifiers, parameters,
// values, pre-annotations, highlights and timestamps.
func Record(kind annotation.Kind, e *types.Entry) map[string]any {
	out := map[string]any{
		"id":                      e.ID,
		"imported_text_source_id": e.SourceID,
		"annotator":               annotatorName(e),
		"created_at":              timestamp(e.CreatedAt),
		"updated_at":              timestamp(e.UpdatedAt),
	}
	for _, param := range kind.Parameters(e.Source) {
		out[param.Name] = param.Value
	}
	for k, v := range kind.Values(e) {
		out[k] = v
	}
	for k, v := range kind.PreAnnotations(e.Source) {
		out["preannotation_"+k] = v
	}
	for k, v := range kind.Highlights(e) {
		out[k] = v
	}
	return out
}

func annotatorName(e *types.Entry) string {
	if e.Annotator == nil || e.Annotator.Contributor == nil {
		return ""
	}
	return e.Annotator.Contributor.Username
}

// JSON renders entries as a JSON list of export objects.
func JSON(p *types.Project, kind annotation.Kind, entries []*types.Entry) (*Attachment, error) {
	timer := logging.StartTimer(logging.CategoryExport, "JSON")
	defer timer.Stop()

	records := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		records = append(records, Record(kind, e))
	}
	body, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}

	logging.Export("Exported %d entries of project %s as JSON", len(entries), p.URL)
	return NewAttachment(p.Name+".json", body), nil
}

// =============================================================================
// DISAGREEMENTS
// =============================================================================

// Disagreements compares two annotators. Only sources both annotated are
// considered, and only those whose values differ are reported, in the order
// of the first annotator's entries. When an annotator annotated a source more
// than once, the earliest entry counts.
func Disagreements(kind annotation.Kind, name1, name2 string, entries1, entries2 []*types.Entry) (*Attachment, error) {
	bySource := make(map[int64]*types.Entry, len(entries2))
	for _, e := range entries2 {
		if _, seen := bySource[e.SourceID]; !seen {
			bySource[e.SourceID] = e
		}
	}

	out := []map[string]any{}
	done := map[int64]bool{}
	for _, e1 := range entries1 {
		if done[e1.SourceID] {
			continue
		}
		done[e1.SourceID] = true

		e2, ok := bySource[e1.SourceID]
		if !ok {
			continue
		}
		v1, v2 := kind.Values(e1), kind.Values(e2)
		if reflect.DeepEqual(v1, v2) {
			continue
		}
		text := ""
		if e1.Source != nil {
			text = e1.Source.Text
		}
		out = append(out, map[string]any{name1: v1, name2: v2, "text": text})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode disagreements: %w", err)
	}
	logging.Export("Found %d disagreements between %s and %s", len(out), name1, name2)
	return NewAttachment(fmt.Sprintf("disagreements-%s-%s.json", name1, name2), body), nil
}
