package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"annopedia/internal/auth"
	"annopedia/internal/config"
	"annopedia/internal/export"
	"annopedia/internal/mail"
	"annopedia/internal/management"
	"annopedia/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, allowAnonymous bool) *Server {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Auth.AllowAnonymous = allowAnonymous
	cfg.Server.MaxUploadBytes = 1 << 16
	svc := management.New(st, mail.LogMailer{}, cfg.Mail)
	return New(cfg, svc, auth.New(cfg.Auth, st, nil), st)
}

// do sends a request through the handler and decodes a JSON response into out.
func do(t *testing.T, s *Server, method, target string, body io.Reader, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func createProject(t *testing.T, s *Server) string {
	t.Helper()
	var p map[string]interface{}
	rec := do(t, s, http.MethodPost, "/api/management/create/", jsonBody(map[string]interface{}{
		"project_type":  "tc",
		"name":          "Headlines",
		"description":   "Classify headlines",
		"talk_markdown": "# Rules",
	}), &p)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return p["url"].(string)
}

func upload(t *testing.T, s *Server, target, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="unannotated_data_file"; filename="data"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, false)
	var body map[string]string
	rec := do(t, s, http.MethodGet, "/healthz", nil, &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestUnauthorized(t *testing.T) {
	s := newTestServer(t, false)
	var body map[string]string
	rec := do(t, s, http.MethodGet, "/api/management/projects/list", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]string{"detail": "Unauthorized"}, body)
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestServer(t, true)
	url := createProject(t, s)

	var list []map[string]interface{}
	rec := do(t, s, http.MethodGet, "/api/management/projects/list?project_type=Text+Classification", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, "Text Classification", list[0]["type"])

	var errBody map[string]string
	rec = do(t, s, http.MethodGet, "/api/management/projects/nope", nil, &errBody)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Project with url nope does not exist", errBody["detail"])

	rec = do(t, s, http.MethodPost, "/api/management/create/", jsonBody(map[string]string{"project_type": "tc"}), &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var patched map[string]interface{}
	rec = do(t, s, http.MethodPatch, "/api/management/projects/"+url, jsonBody(map[string]string{"name": "Renamed"}), &patched)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", patched["name"])

	var msg map[string]string
	rec = do(t, s, http.MethodDelete, "/api/management/projects/"+url, nil, &msg)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Project Renamed deleted", msg["detail"])
}

func TestImportAnnotateExport(t *testing.T) {
	s := newTestServer(t, true)
	url := createProject(t, s)
	for _, name := range []string{"politics", "sports"} {
		rec := do(t, s, http.MethodPost, "/api/management/classification/"+url+"/category",
			jsonBody(map[string]string{"name": name, "description": name}), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := upload(t, s, "/api/management/projects/"+url+"/import?text_field=headline&csv_delimiter=%5Ct",
		"application/xml", "<x/>")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Uploaded data type application/xml is not supported")

	rec = upload(t, s, "/api/management/projects/"+url+"/import?text_field=headline&csv_delimiter=%5Ct",
		"text/csv", "headline\tsource\nElection results are in\twire\nLocal team wins\tpaper\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Successfully created 2 unannotated entries")

	var unannotated []map[string]interface{}
	do(t, s, http.MethodGet, "/api/management/projects/"+url+"/unannotated", nil, &unannotated)
	require.Len(t, unannotated, 2)
	first := int64(unannotated[0]["id"].(float64))

	var entry map[string]interface{}
	rec = do(t, s, http.MethodPost, "/api/management/projects/"+url+"/entries", jsonBody(map[string]interface{}{
		"unannotated_source": first,
		"payload":            map[string]string{"category-name": "politics"},
	}), &entry)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]interface{}{"category": "politics"}, entry["value"])

	do(t, s, http.MethodGet, "/api/management/projects/"+url+"/unannotated", nil, &unannotated)
	assert.Len(t, unannotated, 1)

	var stats map[string]interface{}
	do(t, s, http.MethodGet, "/api/management/projects/"+url+"/statistics", nil, &stats)
	assert.Equal(t, 1.0, stats["total_entries"])
	assert.Equal(t, 2.0, stats["total_imported_texts"])

	rec = do(t, s, http.MethodGet, "/api/management/projects/"+url+"/export?export_type=csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=Headlines.csv", rec.Header().Get("Content-Disposition"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "imported_text_source_id", "text", "category", "preannotation_category", "created_at", "updated_at"}, rows[0])
	assert.Equal(t, "Election results are in", rows[1][2])
	assert.Equal(t, "politics", rows[1][3])

	req := httptest.NewRequest(http.MethodGet, "/api/management/projects/"+url+"/export?export_type=csv", nil)
	req.Header.Set("If-None-Match", etag)
	notModified := httptest.NewRecorder()
	s.Handler().ServeHTTP(notModified, req)
	assert.Equal(t, http.StatusNotModified, notModified.Code)

	var errBody map[string]string
	rec = do(t, s, http.MethodGet, "/api/management/projects/"+url+"/export?export_type=xml", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Requested export type xml is not supported", errBody["detail"])

	rec = do(t, s, http.MethodGet, "/api/management/projects/"+url+"/export", nil, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Missing request data (export_type)", errBody["detail"])
}

func TestInviteAndTokenAuthentication(t *testing.T) {
	s := newTestServer(t, true)
	url := createProject(t, s)
	rec := do(t, s, http.MethodPost, "/api/management/classification/"+url+"/category",
		jsonBody(map[string]string{"name": "politics"}), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = upload(t, s, "/api/management/projects/"+url+"/import?text_field=text", "application/json", `[{"text": "Vote today"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var invited map[string]interface{}
	rec = do(t, s, http.MethodPost, "/api/annotate/projects/"+url+"?email=ann@example.org&username=ann&send_email=false", nil, &invited)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := invited["token"].(string)

	var unannotated []map[string]interface{}
	do(t, s, http.MethodGet, "/api/management/projects/"+url+"/unannotated?token="+token, nil, &unannotated)
	require.Len(t, unannotated, 1)

	rec = do(t, s, http.MethodPost, "/api/management/projects/"+url+"/entries?token="+token, jsonBody(map[string]interface{}{
		"unannotated_source": unannotated[0]["id"],
		"payload":            map[string]string{"category-name": "politics"},
	}), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var annotators []map[string]interface{}
	do(t, s, http.MethodGet, "/api/annotate/projects/"+url+"/annotators", nil, &annotators)
	require.Len(t, annotators, 1)
	assert.Equal(t, "ann", annotators[0]["contributor"])
	assert.Equal(t, 100.0, annotators[0]["completion"])

	var errBody map[string]string
	rec = do(t, s, http.MethodPost, "/api/annotate/projects/"+url+"?email=ann@example.org&username=ann&send_email=false", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Private Annotator ann is already invited to the project", errBody["detail"])
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "Internal server error"}`, rec.Body.String())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", ln.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "ok"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
