package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"annopedia/internal/auth"
	"annopedia/internal/management"
	"annopedia/internal/types"
)

const (
	managementPrefix = "/api/management"
	annotatePrefix   = "/api/annotate"
)

// defaultMaxUpload applies when the config leaves the upload limit unset.
const defaultMaxUpload = 32 << 20

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)

	m := func(pattern string, h principalHandler) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+managementPrefix+path, s.authenticated(h))
	}
	a := func(pattern string, h principalHandler) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+annotatePrefix+path, s.authenticated(h))
	}

	// Projects
	m("POST /create/{$}", s.createProject)
	m("POST /create", s.createProject)
	m("GET /projects/list", s.listProjects)
	m("GET /projects/{url}", s.getProject)
	m("PATCH /projects/{url}", s.updateProject)
	m("DELETE /projects/{url}", s.deleteProject)
	m("POST /projects/{url}/administrators", s.addAdministrator)
	m("GET /projects/{url}/statistics", s.statistics)

	// Categories
	m("POST /classification/{url}/category", s.createCategory)
	m("DELETE /classification/{url}/category", s.deleteCategory)

	// Entries
	m("POST /projects/{url}/entries", s.createEntry)
	m("GET /projects/{url}/entries", s.listEntries)
	m("PATCH /projects/{url}/entries/{id}", s.updateEntry)
	m("DELETE /projects/{url}/entries/{id}", s.deleteEntry)
	m("GET /projects/{url}/entries/{id}/history", s.entryHistory)

	// Imported texts
	m("POST /projects/{url}/import", s.importTexts)
	m("GET /projects/{url}/import", s.listImported)
	m("DELETE /projects/{url}/import/{id}", s.deleteImported)
	m("GET /projects/{url}/unannotated", s.listUnannotated)

	// Exports
	m("GET /projects/{url}/export", s.exportProject)
	m("GET /projects/{url}/export-disagreements", s.exportDisagreements)

	// Private annotators
	a("POST /projects/{url}", s.inviteAnnotator)
	a("GET /projects/{url}/annotators", s.listPrivateAnnotators)
	a("GET /projects/{url}/disagreements", s.listPrivateAnnotators)
	a("GET /projects/{url}/resend-invite-email", s.resendInvitation)

	return recoverPanics(logRequests(mux))
}

// respond writes v as JSON, or the error.
func respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PROJECTS
// =============================================================================

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	var req management.CreateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.CreateProject(r.Context(), caller, req)
	respond(w, r, v, err)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	v, err := s.svc.ListProjects(r.Context(), r.URL.Query().Get("project_type"))
	respond(w, r, v, err)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	v, err := s.svc.GetProject(r.Context(), r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	var patch types.ProjectPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.UpdateProject(r.Context(), caller, r.PathValue("url"), patch)
	respond(w, r, v, err)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	v, err := s.svc.DeleteProject(r.Context(), caller, r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) addAdministrator(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	var req management.AdministratorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.AddAdministrator(r.Context(), caller, r.PathValue("url"), req)
	respond(w, r, v, err)
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	v, err := s.svc.Statistics(r.Context(), r.PathValue("url"))
	respond(w, r, v, err)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	var req management.CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.CreateCategory(r.Context(), caller, r.PathValue("url"), req)
	respond(w, r, v, err)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	raw, err := requiredQuery(r, "category_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := int64Value("category_id", raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.DeleteCategory(r.Context(), caller, r.PathValue("url"), id)
	respond(w, r, v, err)
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	var req types.EntryPayload
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Payload == nil {
		writeError(w, r, types.Unprocessable("Missing request data (payload)"))
		return
	}
	v, err := s.svc.CreateEntry(r.Context(), caller, r.PathValue("url"), req)
	respond(w, r, v, err)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	v, err := s.svc.ListEntries(r.Context(), r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	id, err := int64Value("entry id", r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch types.EntryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.UpdateEntry(r.Context(), caller, r.PathValue("url"), id, patch)
	respond(w, r, v, err)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	id, err := int64Value("entry id", r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.DeleteEntry(r.Context(), caller, r.PathValue("url"), id)
	respond(w, r, v, err)
}

func (s *Server) entryHistory(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	id, err := int64Value("entry id", r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.EntryHistory(r.Context(), caller, r.PathValue("url"), id)
	respond(w, r, v, err)
}

// =============================================================================
// IMPORTED TEXTS
// =============================================================================

// importTexts reads the multipart field unannotated_data_file. Its part
// Content-Type selects the parser.
func (s *Server) importTexts(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	textField, err := requiredQuery(r, "text_field")
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile("unannotated_data_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, types.Invalid("Uploaded file exceeds %d bytes", limit))
			return
		}
		writeError(w, r, types.Unprocessable("Missing request data (unannotated_data_file)"))
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	v, err := s.svc.Import(r.Context(), caller, r.PathValue("url"), management.ImportRequest{
		ContentType:  header.Header.Get("Content-Type"),
		Body:         body,
		CSVDelimiter: q.Get("csv_delimiter"),
		Fields: types.ImportFields{
			TextField:           textField,
			MTSystemTranslation: q.Get("mt_system_translation"),
			ValueField:          q.Get("value_field"),
			ContextField:        q.Get("context_field"),
		},
	})
	respond(w, r, v, err)
}

func (s *Server) listImported(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	v, err := s.svc.ListImported(r.Context(), r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) listUnannotated(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	v, err := s.svc.ListUnannotated(r.Context(), caller, r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) deleteImported(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	id, err := int64Value("imported text id", r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.DeleteImported(r.Context(), caller, r.PathValue("url"), id)
	respond(w, r, v, err)
}

// =============================================================================
// EXPORTS
// =============================================================================

func (s *Server) exportProject(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	exportType, err := requiredQuery(r, "export_type")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.Export(r.Context(), r.PathValue("url"), exportType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, r, a)
}

func (s *Server) exportDisagreements(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	annotator1, err := requiredQuery(r, "annotator1")
	if err != nil {
		writeError(w, r, err)
		return
	}
	annotator2, err := requiredQuery(r, "annotator2")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.ExportDisagreements(r.Context(), r.PathValue("url"), annotator1, annotator2)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, r, a)
}

// =============================================================================
// PRIVATE ANNOTATORS
// =============================================================================

func (s *Server) inviteAnnotator(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	q := r.URL.Query()
	sendEmail, err := optionalBool(r, "send_email")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.InviteAnnotator(r.Context(), caller, r.PathValue("url"), management.InviteRequest{
		Email:     q.Get("email"),
		Username:  q.Get("username"),
		SendEmail: sendEmail,
	})
	respond(w, r, v, err)
}

func (s *Server) listPrivateAnnotators(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	v, err := s.svc.ListPrivateAnnotators(r.Context(), caller, r.PathValue("url"))
	respond(w, r, v, err)
}

func (s *Server) resendInvitation(w http.ResponseWriter, r *http.Request, caller *auth.Principal) {
	username, err := requiredQuery(r, "username")
	if err != nil {
		writeError(w, r, err)
		return
	}
	email, err := requiredQuery(r, "email")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := s.svc.ResendInvitation(r.Context(), caller, r.PathValue("url"), username, email)
	respond(w, r, v, err)
}
