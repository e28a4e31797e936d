package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/shield"
)

// SessionReader resolves the session id of a request ("" when none).
type SessionReader interface {
	ID(r *http.Request) string
}

// SessionEnsurer returns the session id of a request, creating the
// session when absent.
type SessionEnsurer interface {
	Ensure(w http.ResponseWriter, r *http.Request) (string, error)
}

// Envelope is the proxy endpoint response body.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Handler serves proxied fetches. action, url and token are read from the
// query string or a posted form.
func (s *Service) Handler(sessions SessionReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := shield.GetLogger(r.Context())

		if r.FormValue("action") != auth.ActionProxyFetch {
			writeJSON(w, http.StatusBadRequest, Envelope{Data: MsgBadRequest})
			return
		}

		rawURL := r.FormValue("url")
		payload, err := s.Fetch(r.Context(), rawURL, r.FormValue("token"), sessions.ID(r))
		if err != nil {
			logger.Warn("proxy fetch failed", "url", rawURL, "error", err)
			writeJSON(w, HTTPStatus(err), Envelope{Data: PublicMessage(err)})
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, Data: payload})
	})
}

// TokenHandler issues an authenticity token bound to the caller's session,
// setting the session cookie when needed.
func (s *Service) TokenHandler(sessions SessionEnsurer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := sessions.Ensure(w, r)
		if err != nil {
			shield.GetLogger(r.Context()).Error("session", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session unavailable"})
			return
		}
		tok, err := s.IssueToken(id)
		if err != nil {
			shield.GetLogger(r.Context()).Error("issue token", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token unavailable"})
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"token": tok})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
