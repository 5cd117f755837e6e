// Package ingest turns uploaded files into records keyed by column name.
//
// Two formats are accepted: a JSON list of objects and a CSV file with a
// header row. Every value is a string; JSON scalars are stringified and JSON
// null becomes an empty value that is still present in the record.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"annopedia/internal/logging"
	"annopedia/internal/types"

	"github.com/tidwall/gjson"
)

// Supported upload content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// TabEscape is the two-character delimiter clients send for a tab.
const TabEscape = `\t`

// Parse decodes body according to contentType. The delimiter only applies to
// CSV; empty means comma.
func Parse(contentType string, body []byte, delimiter string) ([]types.Record, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	var (
		records []types.Record
		err     error
	)
	switch mediaType {
	case ContentTypeJSON:
		records, err = parseJSON(body)
	case ContentTypeCSV:
		records, err = parseCSV(body, delimiter)
	default:
		return nil, types.Invalid("Uploaded data type %s is not supported", contentType)
	}
	if err != nil {
		logging.Get(logging.CategoryImport).Warn("Rejected %s upload (%d bytes): %v", mediaType, len(body), err)
		return nil, err
	}
	logging.Import("Parsed %d records from %s upload", len(records), mediaType)
	return records, nil
}

func parseJSON(body []byte) ([]types.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, types.Invalid("Uploaded data is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, types.Invalid("Uploaded data is not in a list of records format")
	}

	var records []types.Record
	var bad error
	root.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			bad = types.Invalid("Uploaded data is not in a list of dictionaries format")
			return false
		}
		r := types.Record{}
		row.ForEach(func(key, value gjson.Result) bool {
			r[key.String()] = stringify(value)
			return true
		})
		records = append(records, r)
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return records, nil
}

// stringify renders a JSON value the way it is written in a CSV cell.
func stringify(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String, gjson.True, gjson.False:
		return v.String()
	default:
		return v.Raw
	}
}

func parseCSV(body []byte, delimiter string) ([]types.Record, error) {
	comma, err := delimiterRune(delimiter)
	if err != nil {
		return nil, err
	}

	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = comma

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, types.Invalid("Uploaded CSV has no header row")
	}
	if err != nil {
		return nil, types.Invalid("Uploaded CSV is malformed: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []types.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.Invalid("Uploaded CSV is malformed: %v", err)
		}
		r := make(types.Record, len(header))
		for i, name := range header {
			r[name] = row[i]
		}
		records = append(records, r)
	}
	return records, nil
}

func delimiterRune(delimiter string) (rune, error) {
	switch delimiter {
	case "":
		return ',', nil
	case TabEscape:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, types.Invalid("CSV delimiter %q is not supported", delimiter)
	}
	return r, nil
}
