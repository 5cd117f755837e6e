package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"annopedia/internal/auth"
	"annopedia/internal/logging"
	"annopedia/internal/types"
)

// statusRecorder remembers the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// logRequests writes one api log line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		logging.Get(logging.CategoryAPI).StructuredLog("info", "request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"bytes":       rec.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      auth.RemoteHost(r),
		})
	})
}

// recoverPanics turns a handler panic into a 500 response.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logging.APIError("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, v, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// principalHandler is a handler that needs the authenticated caller.
type principalHandler func(w http.ResponseWriter, r *http.Request, caller *auth.Principal)

// authenticated runs the authenticator chain before h.
func (s *Server) authenticated(h principalHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.authn.Authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if caller == nil || caller.Contributor == nil {
			writeError(w, r, types.Unauthorized("Unauthorized"))
			return
		}
		h(w, r.WithContext(auth.WithPrincipal(r.Context(), caller)), caller)
	}
}
