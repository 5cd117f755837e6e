package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"annopedia/internal/export"
	"annopedia/internal/logging"
	"annopedia/internal/types"
)

// maxJSONBody caps request bodies that are decoded as JSON.
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.APIError("Failed to encode response: %v", err)
	}
}

// writeError answers with the status of the error kind. Errors without a
// kind are logged and reported as internal server errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := types.StatusCode(err)
	if status == http.StatusInternalServerError {
		logging.APIError("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"detail": types.DetailOf(err)})
}

// writeAttachment serves an export for download. A matching If-None-Match
// short-circuits to 304.
func writeAttachment(w http.ResponseWriter, r *http.Request, a *export.Attachment) {
	w.Header().Set("ETag", a.ETag)
	if r.Header.Get("If-None-Match") == a.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", a.ContentDisposition())
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.Body); err != nil {
		logging.APIError("Failed to write attachment %s: %v", a.Filename, err)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return types.Invalid("Request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return types.Unprocessable("Missing request body")
		default:
			return types.Unprocessable("Invalid request body: %v", err)
		}
	}
	return nil
}

// requiredQuery returns a query parameter that must be present.
func requiredQuery(r *http.Request, name string) (string, error) {
	q := r.URL.Query()
	if !q.Has(name) {
		return "", types.Unprocessable("Missing request data (%s)", name)
	}
	return q.Get(name), nil
}

// int64Value parses an integer path or query value.
func int64Value(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.Unprocessable("Invalid %s %q", name, raw)
	}
	return n, nil
}

// optionalBool parses an optional boolean query parameter.
func optionalBool(r *http.Request, name string) (*bool, error) {
	q := r.URL.Query()
	if !q.Has(name) {
		return nil, nil
	}
	b, err := strconv.ParseBool(q.Get(name))
	if err != nil {
		return nil, types.Unprocessable("Invalid %s %q", name, q.Get(name))
	}
	return &b, nil
}
